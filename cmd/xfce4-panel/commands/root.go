package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"log/syslog"
	"net/http"
	_ "net/http/pprof" // no_lint
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/cobra"

	"github.com/skycoin/xfce4-panel/pkg/logstore"
	"github.com/skycoin/xfce4-panel/pkg/metrics"
	"github.com/skycoin/xfce4-panel/pkg/panel"
	"github.com/skycoin/xfce4-panel/pkg/plugins"
	"github.com/skycoin/xfce4-panel/pkg/provider"
	"github.com/skycoin/xfce4-panel/pkg/util/pathutil"
)

// Version of the panel.
const Version = "4.19.0"

type runCfg struct {
	syslogAddr   string
	tag          string
	logLevel     string
	transport    string
	metricsAddr  string
	cfgFromStdin bool
	profileMode  string
	port         string
	args         []string

	profileStop  func()
	logger       *logging.Logger
	masterLogger *logging.MasterLogger
	confPath     string
	conf         *panel.Config
	logs         *logstore.Store
	session      *panel.Session
	recorder     metrics.Recorder
	runtime      *panel.Runtime
}

var cfg *runCfg

var rootCmd = &cobra.Command{
	Use:   "xfce4-panel [config-path]",
	Short: "Panel hosting plugins in wrapper processes",
	Run: func(_ *cobra.Command, args []string) {
		cfg.args = args

		cfg.startProfiler().
			startLogger().
			readConfig().
			openLogStore().
			openSession().
			startMetrics().
			newRuntime().
			exportControl().
			runPanel().
			closeSession().
			restartIfAsked()
	},
	Version: Version,
}

func init() {
	cfg = &runCfg{}
	rootCmd.Flags().StringVarP(&cfg.syslogAddr, "syslog", "", "none", "syslog server address. E.g. localhost:514")
	rootCmd.Flags().StringVarP(&cfg.tag, "tag", "", "xfce4-panel", "logging tag")
	rootCmd.Flags().StringVarP(&cfg.logLevel, "log-level", "", "", "log level, overrides the config: debug, info, warn, error")
	rootCmd.Flags().StringVarP(&cfg.transport, "transport", "t", "", "embedding transport, overrides the config: x11, wayland or pipe")
	rootCmd.Flags().StringVarP(&cfg.metricsAddr, "metrics", "", "", "address to serve prometheus metrics on. E.g. localhost:2112")
	rootCmd.Flags().BoolVarP(&cfg.cfgFromStdin, "stdin", "i", false, "read config from STDIN")
	rootCmd.Flags().StringVarP(&cfg.profileMode, "profile", "p", "none", "enable profiling with pprof. Mode:  none or one of: [cpu, mem, mutex, block, trace, http]")
	rootCmd.Flags().StringVarP(&cfg.port, "port", "", "6060", "port for http-mode of pprof")
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func (cfg *runCfg) startProfiler() *runCfg {
	var option func(*profile.Profile)
	switch cfg.profileMode {
	case "none":
		cfg.profileStop = func() {}
		return cfg
	case "http":
		go func() {
			log.Println(http.ListenAndServe(fmt.Sprintf("localhost:%v", cfg.port), nil))
		}()
		cfg.profileStop = func() {}
		return cfg
	case "cpu":
		option = profile.CPUProfile
	case "mem":
		option = profile.MemProfile
	case "mutex":
		option = profile.MutexProfile
	case "block":
		option = profile.BlockProfile
	case "trace":
		option = profile.TraceProfile
	default:
		log.Fatalf("Unknown profile mode %q", cfg.profileMode)
	}
	cfg.profileStop = profile.Start(profile.ProfilePath(pathutil.CacheHome()+"/xfce4/panel/profile"), option).Stop
	return cfg
}

func (cfg *runCfg) startLogger() *runCfg {
	cfg.masterLogger = logging.NewMasterLogger()
	cfg.logger = cfg.masterLogger.PackageLogger(cfg.tag)

	if cfg.syslogAddr != "none" {
		hook, err := logrus_syslog.NewSyslogHook("udp", cfg.syslogAddr, syslog.LOG_INFO, cfg.tag)
		if err != nil {
			cfg.logger.Error("Unable to connect to syslog daemon:", err)
		} else {
			cfg.masterLogger.AddHook(hook)
			cfg.masterLogger.Out = ioutil.Discard
		}
	}
	return cfg
}

func (cfg *runCfg) readConfig() *runCfg {
	var rdr io.Reader
	if !cfg.cfgFromStdin {
		configPath, err := pathutil.FindConfigPath(cfg.args, 0, panel.EnvConfig, pathutil.PanelDefaults())
		if err != nil {
			home, _ := pathutil.PanelDefaults().Get(pathutil.HomeLoc)
			cfg.logger.WithError(err).Infof("Starting with the default config, saving to %s.", home)
			cfg.conf = panel.DefaultConfig()
			cfg.confPath = home
			return cfg.applyLogLevel()
		}
		f, err := os.Open(configPath) // nolint: gosec
		if err != nil {
			cfg.logger.Fatalf("Failed to open config: %s", err)
		}
		defer f.Close() // nolint: errcheck
		cfg.confPath = configPath
		rdr = f
	} else {
		cfg.logger.Info("Reading config from STDIN")
		rdr = bufio.NewReader(os.Stdin)
	}

	conf, err := panel.DecodeConfig(rdr)
	if err != nil {
		cfg.logger.Fatalf("Failed to read config: %s", err)
	}
	cfg.conf = conf
	return cfg.applyLogLevel()
}

func (cfg *runCfg) applyLogLevel() *runCfg {
	level := cfg.conf.LogLevel
	if cfg.logLevel != "" {
		level = cfg.logLevel
	}
	if level == "" {
		return cfg
	}
	lvl, err := logging.LevelFromString(level)
	if err != nil {
		cfg.logger.Fatal("Invalid log level: ", err)
	}
	cfg.masterLogger.SetLevel(lvl)
	return cfg
}

func (cfg *runCfg) openLogStore() *runCfg {
	if cfg.conf.LogStore.Location == "" {
		return cfg
	}
	location, err := pathutil.Expand(cfg.conf.LogStore.Location)
	if err == nil {
		_, err = pathutil.EnsureDir(filepath.Dir(location))
	}
	if err == nil {
		cfg.logs, err = logstore.Open(location)
	}
	if err != nil {
		cfg.logger.WithError(err).Warn("Plugin logs will not be kept.")
	}
	return cfg
}

func (cfg *runCfg) openSession() *runCfg {
	kind := cfg.conf.Transport
	if cfg.transport != "" {
		kind = cfg.transport
	}
	session, err := panel.OpenSession(context.Background(), kind, cfg.logs, cfg.masterLogger)
	if err != nil {
		cfg.logger.Fatal("Failed to open the embedding transport: ", err)
	}
	cfg.session = session
	return cfg
}

func (cfg *runCfg) startMetrics() *runCfg {
	addr := cfg.conf.MetricsAddr
	if cfg.metricsAddr != "" {
		addr = cfg.metricsAddr
	}
	if addr == "" {
		cfg.recorder = metrics.NewDummy()
		return cfg
	}
	reg := prometheus.NewRegistry()
	cfg.recorder = metrics.NewPrometheus(reg, "xfce4_panel")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	cfg.logger.Infof("Serving metrics on %s", addr)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			cfg.logger.WithError(err).Error("Metrics server stopped.")
		}
	}()
	return cfg
}

func (cfg *runCfg) newRuntime() *runCfg {
	registry := provider.NewRegistry()
	if err := plugins.RegisterAll(registry); err != nil {
		cfg.logger.Fatal("Failed to register built-in plugins: ", err)
	}
	r, err := panel.New(panel.Options{
		Config:     cfg.conf,
		ConfigPath: cfg.confPath,
		Transport:  cfg.session.Transport,
		Registry:   registry,
		Metrics:    cfg.recorder,
		Logs:       cfg.logs,
	}, cfg.masterLogger)
	if err != nil {
		cfg.logger.Fatal("Failed to initialize panel: ", err)
	}
	cfg.runtime = r
	return cfg
}

func (cfg *runCfg) exportControl() *runCfg {
	if cfg.session.Bus == nil {
		return cfg
	}
	if err := panel.NewControl(cfg.runtime).Export(cfg.session.Bus); err != nil {
		cfg.logger.Fatal("Failed to export the control service: ", err)
	}
	cfg.logger.Infof("Control service exported as %s.", panel.ServiceName)
	return cfg
}

func (cfg *runCfg) runPanel() *runCfg {
	defer cfg.profileStop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}...)
	go func() {
		select {
		case s := <-ch:
			cfg.logger.Infof("Received signal %s: quitting", s)
			cancel()
		case <-ctx.Done():
			return
		}
		select {
		case <-time.After(time.Duration(cfg.conf.ShutdownTimeout) + time.Second):
			cfg.logger.Fatal("Timeout reached: terminating")
		case s := <-ch:
			cfg.logger.Fatalf("Received signal %s: terminating", s)
		}
	}()

	if err := cfg.runtime.Run(ctx); err != nil {
		cfg.logger.WithError(err).Error("Panel did not stop cleanly.")
	}
	return cfg
}

func (cfg *runCfg) closeSession() *runCfg {
	if err := cfg.session.Close(); err != nil {
		cfg.logger.WithError(err).Warn("Failed to close the session.")
	}
	if cfg.logs != nil {
		if err := cfg.logs.Close(); err != nil {
			cfg.logger.WithError(err).Warn("Failed to close the plugin log store.")
		}
	}
	return cfg
}

func (cfg *runCfg) restartIfAsked() *runCfg {
	if !cfg.runtime.Restarting() {
		return cfg
	}
	self, err := os.Executable()
	if err != nil {
		cfg.logger.Fatal("Failed to locate the panel executable: ", err)
	}
	cfg.logger.Info("Restarting.")
	if err := syscall.Exec(self, os.Args, os.Environ()); err != nil { // nolint: gosec
		cfg.logger.Fatal("Failed to restart: ", err)
	}
	return cfg
}
