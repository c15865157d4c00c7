package logstore

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	dir, err := ioutil.TempDir("", "logstore")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) }) // nolint: errcheck

	s, err := Open(filepath.Join(dir, "logs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) // nolint: errcheck
	return s
}

func TestLogStore(t *testing.T) {
	s := newStore(t)

	t1 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2000, 2, 1, 0, 0, 0, 0, time.UTC)
	t3 := time.Date(2000, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Store(4, t3, "foo"))
	require.NoError(t, s.Store(4, t1, "bar"))
	require.NoError(t, s.Store(4, t2, "middle"))
	require.NoError(t, s.Store(4, t2, "middle again"))
	require.NoError(t, s.Store(9, t2, "other plugin"))

	res, err := s.LogsSince(4, t1)
	require.NoError(t, err)
	assert.Equal(t, []string{"middle", "middle again", "foo"}, res)

	res, err = s.LogsSince(4, time.Date(1999, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"bar", "middle", "middle again", "foo"}, res)

	res, err = s.LogsSince(4, t3)
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = s.LogsSince(5, t1)
	assert.Equal(t, ErrUnknownPlugin, err)

	ids, err := s.Plugins()
	require.NoError(t, err)
	assert.Equal(t, []int{4, 9}, ids)

	require.NoError(t, s.Forget(9))
	require.NoError(t, s.Forget(9))
	ids, err = s.Plugins()
	require.NoError(t, err)
	assert.Equal(t, []int{4}, ids)
}

func TestWriter(t *testing.T) {
	s := newStore(t)
	at := time.Date(2010, 5, 5, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }

	w := s.Writer(2)
	n, err := fmt.Fprint(w, "one\ntwo\n")
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	s.Append(2, "three")

	res, err := s.LogsSince(2, at.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, res)
}
