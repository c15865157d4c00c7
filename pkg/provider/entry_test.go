package provider

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryPoint(t *testing.T) {
	info := Info{Name: "clock", UniqueID: 3}

	object := EntryPoint{Object: func(info Info, host Host) (Provider, error) {
		return NewBase(info, host), nil
	}}
	function := EntryPoint{Function: func(info Info, host Host) Provider {
		return NewBase(info, host)
	}}

	t.Run("object", func(t *testing.T) {
		p, err := object.New(info, nil)
		require.NoError(t, err)
		assert.Equal(t, 3, p.UniqueID())
		assert.Equal(t, "object", object.Kind())
	})

	t.Run("function", func(t *testing.T) {
		p, err := function.New(info, nil)
		require.NoError(t, err)
		assert.Equal(t, "clock", p.Name())
		assert.Equal(t, "function", function.Kind())
	})

	t.Run("neither", func(t *testing.T) {
		_, err := EntryPoint{}.New(info, nil)
		assert.Equal(t, ErrNoEntryPoint, err)
	})

	t.Run("both", func(t *testing.T) {
		both := EntryPoint{Object: object.Object, Function: function.Function}
		assert.Equal(t, ErrAmbiguousEntryPoint, both.Validate())
	})

	t.Run("constructor_error", func(t *testing.T) {
		boom := errors.New("boom")
		e := EntryPoint{Object: func(Info, Host) (Provider, error) { return nil, boom }}
		_, err := e.New(info, nil)
		assert.Equal(t, boom, err)
	})

	t.Run("nil_provider", func(t *testing.T) {
		e := EntryPoint{Function: func(Info, Host) Provider { return nil }}
		_, err := e.New(info, nil)
		assert.Equal(t, ErrNilProvider, err)
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register("bad", EntryPoint{}))
	require.NoError(t, r.Register("separator", EntryPoint{Function: func(info Info, host Host) Provider {
		return NewBase(info, host)
	}}))

	assert.True(t, r.Has("separator"))
	assert.False(t, r.Has("bad"))
	assert.Equal(t, []string{"separator"}, r.Modules())

	var nilRegistry *Registry
	assert.False(t, nilRegistry.Has("separator"))
}
