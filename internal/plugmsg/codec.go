package plugmsg

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// MaxFrameSize is the largest frame body the codec accepts.
const MaxFrameSize = 1<<16 - 1

// Encode marshals m into a frame body.
// A frame body is formatted as follows:
// field: | kind | payload |
// bytes: | 1    | ~       |
func Encode(m Message) ([]byte, error) {
	var payload []byte
	switch m.Kind.Payload() {
	case PayloadInt, PayloadBool:
		payload = make([]byte, 4)
		binary.BigEndian.PutUint32(payload, uint32(m.Value))
	case PayloadString:
		payload = []byte(m.Text)
	case PayloadRect:
		payload = make([]byte, 16)
		binary.BigEndian.PutUint32(payload[0:4], uint32(m.Rect.X))
		binary.BigEndian.PutUint32(payload[4:8], uint32(m.Rect.Y))
		binary.BigEndian.PutUint32(payload[8:12], uint32(m.Rect.Width))
		binary.BigEndian.PutUint32(payload[12:16], uint32(m.Rect.Height))
	case PayloadSize:
		payload = make([]byte, 8)
		binary.BigEndian.PutUint32(payload[0:4], uint32(m.Rect.Width))
		binary.BigEndian.PutUint32(payload[4:8], uint32(m.Rect.Height))
	}
	if 1+len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("%s: payload too large (%d bytes)", m.Kind, len(payload))
	}
	return append([]byte{byte(m.Kind)}, payload...), nil
}

// Decode unmarshals a frame body. Messages of unknown kind return
// ErrUnknownKind with Kind set so the caller can log it.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, errors.New("empty frame")
	}
	m := Message{Kind: Kind(b[0])}
	if !m.Kind.Known() {
		return m, ErrUnknownKind
	}
	payload := b[1:]
	need := map[PayloadType]int{PayloadInt: 4, PayloadBool: 4, PayloadRect: 16, PayloadSize: 8}[m.Kind.Payload()]
	if len(payload) < need {
		return m, fmt.Errorf("%s: short payload (%d < %d bytes)", m.Kind, len(payload), need)
	}
	switch m.Kind.Payload() {
	case PayloadInt, PayloadBool:
		m.Value = int32(binary.BigEndian.Uint32(payload))
	case PayloadString:
		m.Text = string(payload)
	case PayloadRect:
		m.Rect = Rect{
			X:      int32(binary.BigEndian.Uint32(payload[0:4])),
			Y:      int32(binary.BigEndian.Uint32(payload[4:8])),
			Width:  int32(binary.BigEndian.Uint32(payload[8:12])),
			Height: int32(binary.BigEndian.Uint32(payload[12:16])),
		}
	case PayloadSize:
		m.Rect = Rect{
			Width:  int32(binary.BigEndian.Uint32(payload[0:4])),
			Height: int32(binary.BigEndian.Uint32(payload[4:8])),
		}
	}
	return m, nil
}

// Conn exchanges framed messages over a stream.
// A frame is formatted as follows:
// field: | size | body |
// bytes: | 2    | ~    |
type Conn struct {
	rw  io.ReadWriteCloser
	wMu sync.Mutex
}

// NewConn constructs a new Conn.
func NewConn(rw io.ReadWriteCloser) *Conn {
	return &Conn{rw: rw}
}

// WriteMessage writes one framed message.
func (c *Conn) WriteMessage(m Message) error {
	body, err := Encode(m)
	if err != nil {
		return err
	}
	return c.WriteFrame(body)
}

// WriteFrame writes a raw frame body.
func (c *Conn) WriteFrame(body []byte) error {
	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame too large (%d bytes)", len(body))
	}
	f := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(f[0:2], uint16(len(body)))
	copy(f[2:], body)

	c.wMu.Lock()
	defer c.wMu.Unlock()
	_, err := c.rw.Write(f)
	return err
}

// ReadFrame reads one raw frame body.
func (c *Conn) ReadFrame() ([]byte, error) {
	rawSize := make([]byte, 2)
	if _, err := io.ReadFull(c.rw, rawSize); err != nil {
		return nil, err
	}
	body := make([]byte, binary.BigEndian.Uint16(rawSize))
	if _, err := io.ReadFull(c.rw, body); err != nil {
		return nil, errors.Wrap(err, "short frame")
	}
	return body, nil
}

// ReadMessage reads and decodes one framed message. A frame of unknown kind
// is consumed entirely and reported as ErrUnknownKind.
func (c *Conn) ReadMessage() (Message, error) {
	body, err := c.ReadFrame()
	if err != nil {
		return Message{}, err
	}
	return Decode(body)
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.rw.Close()
}
