/*
Wrapper process that hosts a single external panel plugin
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/pkg/plugins"
	"github.com/skycoin/xfce4-panel/pkg/provider"
	"github.com/skycoin/xfce4-panel/pkg/wrapper"
)

func main() {
	log := logging.MustGetLogger("xfce4-panel-wrapper")

	registry := provider.NewRegistry()
	if err := plugins.RegisterAll(registry); err != nil {
		log.WithError(err).Error("Failed to register built-in plugins.")
		os.Exit(int(provider.ExitFailure))
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-ch:
			log.Infof("Received signal %s: quitting", s)
			cancel()
		case <-ctx.Done():
		}
	}()

	code := wrapper.Run(ctx, os.Args[1:], wrapper.Config{
		Loader: wrapper.NewLoader(registry, wrapper.OpenPlugin),
		Plugs:  wrapper.SessionPlugs(os.Getenv, log),
		Log:    log,
	})
	cancel()
	os.Exit(int(code))
}
