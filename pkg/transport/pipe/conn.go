package pipe

import (
	"fmt"
	"net"
	"os"
	"time"
)

const (
	// DefaultIn is the fd a wrapper reads panel traffic from.
	DefaultIn = uintptr(3)

	// DefaultOut is the fd a wrapper writes panel traffic to.
	DefaultOut = uintptr(4)
)

// Addr implements net.Addr for Conn.
type Addr struct {
	name string
}

// Network returns the custom pipe network type.
func (a *Addr) Network() string { return "pipe" }

func (a *Addr) String() string { return a.name }

// Conn implements net.Conn over a pair of unix pipes.
type Conn struct {
	in  *os.File
	out *os.File
}

// OpenConn creates two unix pipes and returns both ends of a Conn over them.
func OpenConn() (panelConn *Conn, wrapperConn *Conn, err error) {
	panelIn, wrapperOut, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open panel pipe: %s", err)
	}
	wrapperIn, panelOut, err := os.Pipe()
	if err != nil {
		panelIn.Close()    // nolint: errcheck
		wrapperOut.Close() // nolint: errcheck
		return nil, nil, fmt.Errorf("failed to open wrapper pipe: %s", err)
	}
	return &Conn{panelIn, panelOut}, &Conn{wrapperIn, wrapperOut}, nil
}

// NewConn constructs a Conn from inherited fds.
func NewConn(inFd, outFd uintptr) (*Conn, error) {
	in := os.NewFile(inFd, "|in")
	if in == nil {
		return nil, fmt.Errorf("fd %d is not open", inFd)
	}
	if _, err := in.Stat(); err != nil {
		return nil, fmt.Errorf("fd %d: %s", inFd, err)
	}
	out := os.NewFile(outFd, "|out")
	if out == nil {
		return nil, fmt.Errorf("fd %d is not open", outFd)
	}
	if _, err := out.Stat(); err != nil {
		return nil, fmt.Errorf("fd %d: %s", outFd, err)
	}
	return &Conn{in, out}, nil
}

// Files returns the read and write ends, in the order a child expects them
// in ExtraFiles.
func (c *Conn) Files() []*os.File {
	return []*os.File{c.in, c.out}
}

func (c *Conn) Read(b []byte) (int, error) { return c.in.Read(b) }

func (c *Conn) Write(b []byte) (int, error) { return c.out.Write(b) }

// Close closes both pipes.
func (c *Conn) Close() error {
	inErr := c.in.Close()
	outErr := c.out.Close()
	if inErr != nil {
		return fmt.Errorf("failed to close input pipe: %s", inErr)
	}
	if outErr != nil {
		return fmt.Errorf("failed to close output pipe: %s", outErr)
	}
	return nil
}

// LocalAddr returns the local network address.
func (c *Conn) LocalAddr() net.Addr { return &Addr{c.in.Name()} }

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr { return &Addr{c.out.Name()} }

// SetDeadline implements net.Conn.
func (c *Conn) SetDeadline(t time.Time) error {
	if err := c.in.SetDeadline(t); err != nil {
		return fmt.Errorf("failed to set input pipe deadline: %s", err)
	}
	if err := c.out.SetDeadline(t); err != nil {
		return fmt.Errorf("failed to set output pipe deadline: %s", err)
	}
	return nil
}

// SetReadDeadline implements net.Conn.
func (c *Conn) SetReadDeadline(t time.Time) error { return c.in.SetDeadline(t) }

// SetWriteDeadline implements net.Conn.
func (c *Conn) SetWriteDeadline(t time.Time) error { return c.out.SetDeadline(t) }
