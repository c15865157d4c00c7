// Package wrapper is the out-of-process side of a panel plugin: it loads one
// plugin module, embeds it into the panel and relays control messages until
// the panel lets it go.
package wrapper

import (
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// ErrMissingArgs is returned when a required argument was not given.
var ErrMissingArgs = errors.New("missing required arguments")

// Args are what the panel starts a wrapper with.
type Args struct {
	Name        string
	DisplayName string
	UniqueID    int
	Filename    string
	SocketID    uint32

	// Extra holds everything after "--", passed on to the plugin.
	Extra []string
}

var required = []string{"name", "display-name", "id", "filename", "socket-id"}

// Flags returns a flag set bound to a.
func (a *Args) Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("xfce4-panel-wrapper", pflag.ContinueOnError)
	fs.StringVar(&a.Name, "name", "", "plugin internal name")
	fs.StringVar(&a.DisplayName, "display-name", "", "plugin display name")
	fs.IntVar(&a.UniqueID, "id", -1, "plugin unique id")
	fs.StringVar(&a.Filename, "filename", "", "plugin module file")
	fs.Uint32Var(&a.SocketID, "socket-id", 0, "embedding socket id")
	return fs
}

// ParseArgs parses a wrapper command line. All five plugin arguments must be
// present.
func ParseArgs(argv []string) (*Args, error) {
	a := &Args{}
	fs := a.Flags()
	fs.SetOutput(ioutil.Discard)
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}

	var missing []string
	for _, name := range required {
		if !fs.Changed(name) {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Wrap(ErrMissingArgs, strings.Join(missing, ", "))
	}
	if a.UniqueID < 0 {
		return nil, fmt.Errorf("invalid plugin id %d", a.UniqueID)
	}
	if a.Name == "" {
		return nil, errors.Wrap(ErrMissingArgs, "--name is empty")
	}
	if fs.ArgsLenAtDash() >= 0 {
		a.Extra = fs.Args()[fs.ArgsLenAtDash():]
	}
	return a, nil
}

func (a *Args) String() string {
	return fmt.Sprintf("%s-%d", a.Name, a.UniqueID)
}
