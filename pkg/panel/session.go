package panel

import (
	"context"
	"os"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/internal/netutil"
	"github.com/skycoin/xfce4-panel/pkg/logstore"
	"github.com/skycoin/xfce4-panel/pkg/transport"
	"github.com/skycoin/xfce4-panel/pkg/transport/pipe"
	"github.com/skycoin/xfce4-panel/pkg/transport/wayland"
	"github.com/skycoin/xfce4-panel/pkg/transport/x11"
)

// Session is what the panel opened to reach its desktop session: the
// embedding transport and, when available, the session bus.
type Session struct {
	Transport transport.Factory

	// Bus is nil when no session bus could be reached.
	Bus *dbus.Conn
}

// Connections to the display and to a required session bus are retried
// while the session starts up.
const (
	SessionRetryBackoff   = 100 * time.Millisecond
	SessionRetryThreshold = 5 * time.Second
)

// OpenSession selects the embedding transport, by name or detected from
// the environment when kind is empty, and connects what it needs. The
// choice is exported to the environment so wrappers make the same one.
func OpenSession(ctx context.Context, kind string, logs *logstore.Store, masterLogger *logging.MasterLogger) (*Session, error) {
	if kind == "" {
		kind = transport.Detect(os.Getenv)
	}
	if err := os.Setenv(transport.EnvTransport, kind); err != nil {
		return nil, err
	}
	log := masterLogger.PackageLogger(kind)

	retrier := netutil.NewRetrier(SessionRetryBackoff, SessionRetryThreshold, 2, log)

	s := &Session{}
	connectBus := func() (err error) {
		s.Bus, err = wayland.Connect()
		return err
	}
	var err error
	if kind == transport.TypeWayland {
		err = retrier.Do(ctx, connectBus)
	} else {
		err = connectBus()
	}
	if err != nil {
		log.WithError(err).Warn("Running without the session bus.")
	}

	switch kind {
	case transport.TypeX11:
		var d *x11.XDisplay
		err := retrier.Do(ctx, func() (err error) {
			d, err = x11.Open("", log)
			return err
		})
		if err != nil {
			s.Close() // nolint: errcheck
			return nil, err
		}
		s.Transport = x11.NewFactory(d, log)

	case transport.TypeWayland:
		if s.Bus == nil {
			return nil, errors.Wrap(err, "the wayland transport needs the session bus")
		}
		s.Transport = wayland.NewFactory(s.Bus, log)

	case transport.TypePipe:
		var sink pipe.LogSink
		if logs != nil {
			sink = logs.Append
		}
		s.Transport = pipe.NewFactory(uuid.New().String(), sink, log)

	default:
		s.Close() // nolint: errcheck
		return nil, errors.Errorf("unknown transport %q", kind)
	}
	return s, nil
}

// Close closes the transport, which owns its display connection, and the
// session bus.
func (s *Session) Close() error {
	var err error
	if s.Transport != nil {
		err = s.Transport.Close()
	}
	if s.Bus != nil {
		if cErr := s.Bus.Close(); err == nil {
			err = cErr
		}
	}
	return err
}
