// Package netutil retries connections to services of the desktop session.
package netutil

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
)

// ErrThresholdReached is the cause returned once the retrier gives up.
var ErrThresholdReached = errors.New("threshold timeout has been reached")

// RetryFunc is the operation being retried.
type RetryFunc func() error

// Retrier retries a RetryFunc with exponential backoff until it succeeds,
// fails with a whitelisted error, or the threshold elapses after the first
// failure.
type Retrier struct {
	exponentialBackoff time.Duration
	exponentialFactor  uint32
	threshold          time.Duration
	errWhitelist       map[error]struct{}
	log                *logging.Logger
}

// NewRetrier returns a retrier. A nil log uses the package logger.
func NewRetrier(exponentialBackoff, threshold time.Duration, factor uint32, log *logging.Logger) *Retrier {
	if log == nil {
		log = logging.MustGetLogger("retrier")
	}
	return &Retrier{
		exponentialBackoff: exponentialBackoff,
		threshold:          threshold,
		exponentialFactor:  factor,
		errWhitelist:       make(map[error]struct{}),
		log:                log,
	}
}

// WithErrWhitelist sets the errors that are returned without retrying.
// They are matched against the cause of the returned error.
func (r *Retrier) WithErrWhitelist(errs ...error) *Retrier {
	m := make(map[error]struct{})
	for _, err := range errs {
		m[err] = struct{}{}
	}
	r.errWhitelist = m
	return r
}

// Do runs f until it succeeds. The last error is wrapped around
// ErrThresholdReached when the retrier gives up.
func (r *Retrier) Do(ctx context.Context, f RetryFunc) error {
	var deadline <-chan time.Time
	backoff := r.exponentialBackoff

	for {
		err := f()
		if err == nil {
			return nil
		}
		if r.isWhitelisted(err) {
			return err
		}
		r.log.WithError(err).Warnf("Retrying in %s.", backoff)

		if deadline == nil {
			deadline = time.After(r.threshold)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return errors.Wrap(ErrThresholdReached, err.Error())
		case <-time.After(backoff):
		}
		backoff *= time.Duration(r.exponentialFactor)
	}
}

func (r *Retrier) isWhitelisted(err error) bool {
	_, ok := r.errWhitelist[errors.Cause(err)]
	return ok
}
