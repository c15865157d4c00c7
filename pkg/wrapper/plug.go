package wrapper

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/pkg/transport"
	"github.com/skycoin/xfce4-panel/pkg/transport/pipe"
	"github.com/skycoin/xfce4-panel/pkg/transport/wayland"
	"github.com/skycoin/xfce4-panel/pkg/transport/x11"
)

// PlugFunc constructs the plug a wrapper embeds through.
type PlugFunc func(args *Args) (transport.Plug, error)

// closingPlug closes the connection a plug was built on together with it.
type closingPlug struct {
	transport.Plug
	conn io.Closer
}

func (p *closingPlug) Close() error {
	err := p.Plug.Close()
	if cErr := p.conn.Close(); err == nil {
		err = cErr
	}
	return err
}

// SessionPlugs returns a PlugFunc choosing the transport named in the
// environment, or detected from the session.
func SessionPlugs(getenv func(string) string, log *logging.Logger) PlugFunc {
	return func(args *Args) (transport.Plug, error) {
		switch t := transport.Detect(getenv); t {
		case transport.TypeX11:
			d, err := x11.Open("", log)
			if err != nil {
				return nil, err
			}
			p, err := x11.NewPlug(d, args.SocketID, log)
			if err != nil {
				d.Close() // nolint: errcheck
				return nil, err
			}
			return &closingPlug{Plug: p, conn: d}, nil

		case transport.TypeWayland:
			conn, err := wayland.Connect()
			if err != nil {
				return nil, err
			}
			p, err := wayland.NewPlug(conn, args.UniqueID, log)
			if err != nil {
				conn.Close() // nolint: errcheck
				return nil, err
			}
			return &closingPlug{Plug: p, conn: conn}, nil

		case transport.TypePipe:
			p, err := pipe.NewPlug(getenv(transport.EnvSession), log)
			if err != nil {
				return nil, err
			}
			if w, err := p.LogWriter(); err == nil {
				logging.SetOutputTo(io.MultiWriter(os.Stderr, w))
			} else {
				log.WithError(err).Warn("Logs will not reach the panel.")
			}
			return p, nil

		default:
			return nil, errors.Errorf("unknown transport %q", t)
		}
	}
}
