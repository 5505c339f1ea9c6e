package bcvtb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Conn is one established channel to the peer.
//
// Thread-safety: NOT thread-safe. One goroutine drives a Conn.
type Conn struct {
	c       net.Conn
	r       *bufio.Reader
	timeout time.Duration
}

// NewConn wraps c. A positive timeout bounds every Read and Write.
func NewConn(c net.Conn, timeout time.Duration) *Conn {
	return &Conn{c: c, r: bufio.NewReader(c), timeout: timeout}
}

// Dial connects to a server, as the companion process does.
func Dial(ctx context.Context, host string, port int, timeout time.Duration) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("dialing %s:%d: %w", host, port, err)
	}
	return NewConn(c, timeout), nil
}

// SetTimeout replaces the per-operation bound; zero or negative disables it.
func (c *Conn) SetTimeout(d time.Duration) { c.timeout = d }

func (c *Conn) deadline() error {
	if c.timeout <= 0 {
		return c.c.SetDeadline(time.Time{})
	}
	return c.c.SetDeadline(time.Now().Add(c.timeout))
}

// Write sends one message.
func (c *Conn) Write(m Message) error {
	buf, err := m.MarshalText()
	if err != nil {
		return err
	}
	if err := c.deadline(); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := c.c.Write(buf); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// Read receives one message.
func (c *Conn) Read() (Message, error) {
	if err := c.deadline(); err != nil {
		return Message{}, fmt.Errorf("setting read deadline: %w", err)
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return Message{}, fmt.Errorf("reading message: %w", err)
	}
	var m Message
	if err := m.UnmarshalText(line); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Exchange writes out and then reads the peer's answer.
func (c *Conn) Exchange(out Message) (Message, error) {
	if err := c.Write(out); err != nil {
		return Message{}, err
	}
	return c.Read()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.c.Close()
}

// IsTimeout reports whether err came from an expired deadline.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
