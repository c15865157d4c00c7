// Package external runs plugins in wrapper processes and relays control
// messages to them over the session's embedding transport.
package external

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/xfce4-panel/internal/plugmsg"
	"github.com/skycoin/xfce4-panel/pkg/factory"
	"github.com/skycoin/xfce4-panel/pkg/metrics"
	"github.com/skycoin/xfce4-panel/pkg/provider"
	"github.com/skycoin/xfce4-panel/pkg/transport"
)

// Defaults.
const (
	DefaultWrapperPath  = "xfce4-panel-wrapper"
	DefaultFlushDelay   = 10 * time.Millisecond
	DefaultEmbedTimeout = 15 * time.Second
)

// ErrWrapperNotFound is returned when the wrapper executable cannot be found.
var ErrWrapperNotFound = errors.New("wrapper executable not found")

// Config configures a Launcher.
type Config struct {
	WrapperPath string
	Transport   transport.Factory
	Executer    Executer
	Metrics     metrics.Recorder

	// Logs receives every line a wrapper writes to stdout or stderr.
	Logs func(uniqueID int, line string)

	QueueLimit   int
	FlushDelay   time.Duration
	EmbedTimeout time.Duration

	OnExit        func(h *Handle, info ExitInfo)
	OnSignal      func(h *Handle, sig provider.Signal)
	OnRequisition func(h *Handle, width, height int)
	OnEmbedded    func(h *Handle)
}

// Launcher spawns wrapper processes. It implements factory.Spawner.
type Launcher struct {
	conf    Config
	log     *logging.Logger
	metrics metrics.Recorder

	mu      sync.Mutex
	handles map[int]*Handle
}

// NewLauncher constructs a Launcher, filling in defaults for unset fields.
func NewLauncher(conf Config, log *logging.Logger) *Launcher {
	if log == nil {
		log = logging.MustGetLogger("external")
	}
	if conf.WrapperPath == "" {
		conf.WrapperPath = DefaultWrapperPath
	}
	if conf.Executer == nil {
		conf.Executer = NewOSExecuter()
	}
	if conf.Metrics == nil {
		conf.Metrics = metrics.NewDummy()
	}
	if conf.FlushDelay <= 0 {
		conf.FlushDelay = DefaultFlushDelay
	}
	if conf.EmbedTimeout <= 0 {
		conf.EmbedTimeout = DefaultEmbedTimeout
	}
	return &Launcher{
		conf:    conf,
		log:     log,
		metrics: conf.Metrics,
		handles: make(map[int]*Handle),
	}
}

// Spawn implements factory.Spawner. The returned provider is a *Handle.
func (l *Launcher) Spawn(d *factory.Descriptor, display string, uniqueID int, args []string) (provider.Provider, error) {
	bin, err := exec.LookPath(l.conf.WrapperPath)
	if err != nil {
		return nil, errors.Wrapf(ErrWrapperNotFound, "%s: %v", l.conf.WrapperPath, err)
	}
	if display == "" {
		display = d.DisplayName
	}

	sock, err := l.conf.Transport.NewSocket(uniqueID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create socket")
	}

	log := logging.MustGetLogger(fmt.Sprintf("%s-%d", d.Name, uniqueID))
	h := &Handle{
		l: l,
		info: provider.Info{
			Name:        d.Name,
			DisplayName: display,
			Comment:     d.Comment,
			UniqueID:    uniqueID,
			Args:        args,
		},
		module: d.Name,
		sock:   sock,
		log:    log,
		queue:  plugmsg.NewQueue(l.conf.QueueLimit),
		exited: make(chan struct{}),
	}

	h.cmd = exec.Command(bin, Argv(d, display, uniqueID, sock.ID(), args)...) // nolint: gosec
	if err := sock.Prepare(h.cmd); err != nil {
		sock.Close() // nolint: errcheck
		return nil, errors.Wrap(err, "failed to prepare wrapper")
	}
	h.logs = l.wireOutput(h)
	sock.OnReceive(h.handleMessage)

	pid, err := l.conf.Executer.Start(h.cmd)
	if err != nil {
		h.logs.Close() // nolint: errcheck
		sock.Close()   // nolint: errcheck
		return nil, errors.Wrap(err, "failed to start wrapper")
	}

	h.mu.Lock()
	h.pid = pid
	if h.state == StateSpawning {
		h.state = StateRunning
		h.embedTimer = time.AfterFunc(l.conf.EmbedTimeout, h.embedTimedOut)
	}
	h.mu.Unlock()

	l.mu.Lock()
	l.handles[uniqueID] = h
	l.mu.Unlock()

	l.metrics.Spawned(d.Name)
	l.metrics.Live(1)
	l.log.Infof("Started %s-%d with pid %d on socket %d.", d.Name, uniqueID, pid, sock.ID())

	if err := sock.Started(); err != nil {
		log.WithError(err).Warn("Transport failed to attach to wrapper.")
	}
	go h.wait()
	return h, nil
}

// Argv returns the arguments a wrapper is started with.
func Argv(d *factory.Descriptor, display string, uniqueID int, socketID uint32, args []string) []string {
	argv := []string{
		"--name", d.Name,
		"--display-name", display,
		"--id", strconv.Itoa(uniqueID),
		"--filename", d.Filename,
		"--socket-id", strconv.FormatUint(uint64(socketID), 10),
	}
	if len(args) > 0 {
		argv = append(append(argv, "--"), args...)
	}
	return argv
}

func (l *Launcher) wireOutput(h *Handle) io.Closer {
	stdout := h.log.WithField("_src", "stdout").Writer()
	stderr := h.log.WithField("_src", "stderr").Writer()
	out := &outputs{closers: []io.Closer{stdout, stderr}}

	var outW, errW io.Writer = stdout, stderr
	if l.conf.Logs != nil {
		id := h.info.UniqueID
		sink := func(line string) { l.conf.Logs(id, line) }
		outLines, errLines := &lineWriter{fn: sink}, &lineWriter{fn: sink}
		out.closers = append(out.closers, outLines, errLines)
		outW, errW = io.MultiWriter(stdout, outLines), io.MultiWriter(stderr, errLines)
	}
	h.cmd.Stdout = outW
	h.cmd.Stderr = errW
	return out
}

// Handle returns the running handle for uniqueID.
func (l *Launcher) Handle(uniqueID int) (*Handle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handles[uniqueID]
	return h, ok
}

// Handles returns every running handle.
func (l *Launcher) Handles() []*Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Handle, 0, len(l.handles))
	for _, h := range l.handles {
		out = append(out, h)
	}
	return out
}

func (l *Launcher) forget(h *Handle) {
	l.mu.Lock()
	if l.handles[h.info.UniqueID] == h {
		delete(l.handles, h.info.UniqueID)
	}
	l.mu.Unlock()
}

type outputs struct {
	closers []io.Closer
}

func (o *outputs) Close() error {
	var err error
	for _, c := range o.closers {
		if cErr := c.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}
	return err
}

// lineWriter hands every complete line written to it to fn.
type lineWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	fn  func(line string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			return len(p), nil
		}
		line := string(bytes.TrimRight(w.buf.Next(i+1), "\r\n"))
		w.fn(line)
	}
}

// Close flushes a trailing unterminated line.
func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.fn(w.buf.String())
		w.buf.Reset()
	}
	return nil
}
