package wrapper

import (
	"context"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
	"github.com/skycoin/xfce4-panel/pkg/provider"
	"github.com/skycoin/xfce4-panel/pkg/transport"
)

// Config configures Run.
type Config struct {
	Loader *Loader
	Plugs  PlugFunc
	Log    *logging.Logger
}

// Run parses argv, loads and embeds the plugin, and serves it until the
// panel releases it. It returns the status the wrapper exits with.
func Run(ctx context.Context, argv []string, conf Config) provider.ExitCode {
	log := conf.Log
	if log == nil {
		log = logging.MustGetLogger("wrapper")
	}

	args, err := ParseArgs(argv)
	if err != nil {
		log.WithError(err).Error("Invalid arguments.")
		return provider.ExitFailure
	}
	log = logging.MustGetLogger(args.String())

	module, err := conf.Loader.Load(args.Name, args.Filename)
	if err != nil {
		log.WithError(err).Error("Failed to load module.")
		return provider.ExitFailure
	}
	defer conf.Loader.Release(module)

	h := newHost(log)
	info := provider.Info{
		Name:        args.Name,
		DisplayName: args.DisplayName,
		UniqueID:    args.UniqueID,
		Args:        args.Extra,
	}
	p, err := module.Entry.New(info, h)
	if err == provider.ErrNilProvider {
		log.Error("Module returned no plugin.")
		return provider.ExitNoProvider
	}
	if err != nil {
		log.WithError(err).Error("Failed to construct plugin.")
		return provider.ExitFailure
	}
	log.Infof("Constructed %s through its %s entry point.", args.Name, module.Entry.Kind())

	plug, err := conf.Plugs(args)
	if err != nil {
		log.WithError(err).Error("Failed to create plug.")
		return provider.ExitFailure
	}
	defer func() {
		if err := plug.Close(); err != nil && err != transport.ErrClosed {
			log.WithError(err).Debug("Failed to close plug.")
		}
	}()

	l := &loop{p: p, log: log, in: make(chan plugmsg.Message, 64), stop: make(chan struct{})}
	defer close(l.stop)
	plug.OnReceive(l.receive)
	h.attach(plug)

	if err := plug.Embed(); err != nil {
		log.WithError(err).Error("Failed to embed.")
		return provider.ExitFailure
	}
	return l.run(ctx, plug)
}

type loop struct {
	p    provider.Provider
	log  *logging.Logger
	in   chan plugmsg.Message
	stop chan struct{}
}

func (l *loop) receive(m plugmsg.Message) {
	select {
	case l.in <- m:
	case <-l.stop:
	}
}

func (l *loop) run(ctx context.Context, plug transport.Plug) provider.ExitCode {
	var destroyed <-chan struct{}
	if d, ok := l.p.(provider.Destroyable); ok {
		destroyed = d.Destroyed()
	}
	for {
		select {
		case <-ctx.Done():
			l.log.Info("Interrupted.")
			return provider.ExitSuccess
		case <-plug.Done():
			l.log.Info("Panel went away.")
			return provider.ExitSuccess
		case <-destroyed:
			l.log.Info("Plugin destroyed itself.")
			if err := plug.Send(plugmsg.Trigger(plugmsg.KindProviderDestroyed)); err != nil {
				l.log.WithError(err).Debug("Failed to announce destruction.")
			}
			return provider.ExitSuccess
		case m := <-l.in:
			if !l.dispatch(m) {
				return provider.ExitSuccess
			}
		}
	}
}

// dispatch hands m to the plugin. It reports false when the wrapper should
// exit.
func (l *loop) dispatch(m plugmsg.Message) bool {
	p := l.p
	appearance, _ := p.(provider.Appearance)
	placement, _ := p.(provider.Placement)

	switch m.Kind {
	case plugmsg.KindSetSize:
		p.SetSize(m.Int())
	case plugmsg.KindSetOrientation:
		p.SetOrientation(provider.Orientation(m.Value))
	case plugmsg.KindSetScreenPosition:
		p.SetScreenPosition(provider.ScreenPosition(m.Value))
	case plugmsg.KindSave:
		p.Save()
	case plugmsg.KindShowConfigure:
		if p.CanConfigure() {
			p.ShowConfigure()
		}
	case plugmsg.KindShowAbout:
		if p.CanShowAbout() {
			p.ShowAbout()
		}
	case plugmsg.KindRemove:
		l.log.Info("Removed from the panel.")
		p.Remove()
		return false
	case plugmsg.KindQuit:
		l.log.Info("Asked to quit.")
		return false

	case plugmsg.KindSetSensitive, plugmsg.KindSetBackgroundAlpha, plugmsg.KindSetBackgroundColor,
		plugmsg.KindSetBackgroundImage, plugmsg.KindUnsetBackground:
		if appearance == nil {
			return true
		}
		switch m.Kind {
		case plugmsg.KindSetSensitive:
			appearance.SetSensitive(m.Bool())
		case plugmsg.KindSetBackgroundAlpha:
			appearance.SetBackgroundAlpha(m.Int())
		case plugmsg.KindSetBackgroundColor:
			appearance.SetBackgroundColor(m.Text)
		case plugmsg.KindSetBackgroundImage:
			appearance.SetBackgroundImage(m.Text)
		default:
			appearance.UnsetBackground()
		}

	case plugmsg.KindSetGeometry, plugmsg.KindSetMonitor, plugmsg.KindSetActivePanel:
		if placement == nil {
			return true
		}
		switch m.Kind {
		case plugmsg.KindSetGeometry:
			r := m.Rect
			placement.SetGeometry(int(r.X), int(r.Y), int(r.Width), int(r.Height))
		case plugmsg.KindSetMonitor:
			placement.SetMonitor(m.Int())
		default:
			placement.SetActivePanel(m.Bool())
		}

	default:
		l.log.Warnf("Ignoring unexpected message %s.", m)
	}
	return true
}
