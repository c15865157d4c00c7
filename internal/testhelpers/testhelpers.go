// Package testhelpers provides helpers for testing.
package testhelpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	timeout = 5 * time.Second
	tick    = 5 * time.Millisecond
)

// Eventually polls cond until it holds, failing the test after a second.
func Eventually(t *testing.T, cond func() bool, msgAndArgs ...interface{}) {
	require.Eventually(t, cond, time.Second, tick, msgAndArgs...)
}

// Closed fails the test unless ch is closed, or yields, within timeout.
func Closed(t *testing.T, ch <-chan struct{}, msgAndArgs ...interface{}) {
	select {
	case <-ch:
	case <-time.After(timeout):
		require.FailNow(t, "channel not closed within timeout", msgAndArgs...)
	}
}

// NoErrorN performs require.NoError on multiple errors
func NoErrorN(t *testing.T, errs ...error) {
	for _, err := range errs {
		require.NoError(t, err)
	}
}
