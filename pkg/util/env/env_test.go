package env

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverrides(t *testing.T) {
	defer os.Unsetenv("TEST_ENV_INT")      // nolint: errcheck
	defer os.Unsetenv("TEST_ENV_DURATION") // nolint: errcheck

	assert.Equal(t, 7, Int("TEST_ENV_INT", 7))
	os.Setenv("TEST_ENV_INT", "12") // nolint: errcheck
	assert.Equal(t, 12, Int("TEST_ENV_INT", 7))
	os.Setenv("TEST_ENV_INT", "twelve") // nolint: errcheck
	assert.Equal(t, 7, Int("TEST_ENV_INT", 7))

	assert.Equal(t, time.Second, Duration("TEST_ENV_DURATION", time.Second))
	os.Setenv("TEST_ENV_DURATION", "250ms") // nolint: errcheck
	assert.Equal(t, 250*time.Millisecond, Duration("TEST_ENV_DURATION", time.Second))
}
