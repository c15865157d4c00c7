package external

import (
	"errors"
	"os/exec"
	"sync"
)

// Executer starts wrapper processes and waits for them.
type Executer interface {
	Start(cmd *exec.Cmd) (int, error)
	// Wait blocks until the process exits and returns its exit status.
	Wait(cmd *exec.Cmd) (int, error)
}

type osExecuter struct{}

// NewOSExecuter returns an Executer running real processes.
func NewOSExecuter() Executer {
	return osExecuter{}
}

func (osExecuter) Start(cmd *exec.Cmd) (int, error) {
	if err := cmd.Start(); err != nil {
		return -1, err
	}
	return cmd.Process.Pid, nil
}

func (osExecuter) Wait(cmd *exec.Cmd) (int, error) {
	err := cmd.Wait()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

// MockExecuter records commands instead of running them. Processes exit when
// Exit is called.
type MockExecuter struct {
	mu    sync.Mutex
	err   error
	next  int
	cmds  []*exec.Cmd
	pids  map[*exec.Cmd]int
	exits map[int]chan int
}

// NewMockExecuter constructs a MockExecuter.
func NewMockExecuter() *MockExecuter {
	return &MockExecuter{
		next:  100,
		pids:  make(map[*exec.Cmd]int),
		exits: make(map[int]chan int),
	}
}

// SetErr makes subsequent starts fail with err.
func (e *MockExecuter) SetErr(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

// Start implements Executer.
func (e *MockExecuter) Start(cmd *exec.Cmd) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return -1, e.err
	}
	e.next++
	e.cmds = append(e.cmds, cmd)
	e.pids[cmd] = e.next
	e.exits[e.next] = make(chan int, 1)
	return e.next, nil
}

// Wait implements Executer.
func (e *MockExecuter) Wait(cmd *exec.Cmd) (int, error) {
	e.mu.Lock()
	pid, ok := e.pids[cmd]
	ch := e.exits[pid]
	e.mu.Unlock()
	if !ok {
		return -1, errors.New("process was not started")
	}
	return <-ch, nil
}

// Exit makes the process pid exit with code.
func (e *MockExecuter) Exit(pid, code int) {
	e.mu.Lock()
	ch := e.exits[pid]
	e.mu.Unlock()
	if ch != nil {
		select {
		case ch <- code:
		default:
		}
	}
}

// Cmds returns every command started so far.
func (e *MockExecuter) Cmds() []*exec.Cmd {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*exec.Cmd(nil), e.cmds...)
}
