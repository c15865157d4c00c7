package internal

import (
	"strconv"

	"github.com/godbus/dbus/v5"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/pkg/panel"
)

var log = logging.MustGetLogger("panel-cli")

// Catch handles errors for panel-cli commands packages
func Catch(err error, msgs ...string) {
	if err != nil {
		if len(msgs) > 0 {
			log.Fatalln(append(msgs, err.Error()))
		} else {
			log.Fatalln(err)
		}
	}
}

// ParseID parses a plugin unique id
func ParseID(name, v string) int {
	id, err := strconv.Atoi(v)
	Catch(err, "failed to parse <"+name+">:")
	return id
}

// Client connects to the panel over the session bus.
func Client() *panel.Client {
	conn, err := dbus.SessionBus()
	Catch(err, "session bus connection failed:")
	return panel.NewClient(conn)
}
