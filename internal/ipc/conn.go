package ipc

import (
	"bufio"
	"net"
	"sync"
)

// Conn wraps a single TCP connection between the orchestrator and one
// worker. Framing is the only synchronization point (spec §4.1): Send and
// Recv operate on whole frames, never partial ones.
type Conn struct {
	nc net.Conn
	r  *bufio.Reader

	writeMu sync.Mutex
}

// NewConn adopts an already-established net.Conn (from Dial or Accept).
func NewConn(nc net.Conn) *Conn {
	return &Conn{
		nc: nc,
		r:  bufio.NewReader(nc),
	}
}

// Dial connects to an orchestrator or worker endpoint over TCP.
func Dial(addr string) (*Conn, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(nc), nil
}

// Send encodes and writes a single message. Concurrent Send calls are
// serialized so frames are never interleaved on the wire.
func (c *Conn) Send(t Type, payload interface{}) error {
	frame, err := Encode(t, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.nc, frame)
}

// Recv blocks for the next frame and returns its decoded envelope.
func (c *Conn) Recv() (Envelope, error) {
	frame, err := ReadFrame(c.r)
	if err != nil {
		return Envelope{}, err
	}
	return Decode(frame)
}

// RemoteAddr returns the address of the peer, used for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// LocalAddr returns the local address of the connection.
func (c *Conn) LocalAddr() net.Addr {
	return c.nc.LocalAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}
