package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

const (
	// connBufferSize is the read and write buffer size of a Connection.
	connBufferSize = 8 * 1024

	lingerTimeout  = time.Second
	maxLingerBytes = 256 * 1024
)

// Connection owns one accepted connection and its buffered streams.
type Connection struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	closeOnce sync.Once
	closeErr  error
}

func NewConnection(conn net.Conn) *Connection {
	return &Connection{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, connBufferSize),
		writer: bufio.NewWriterSize(conn, connBufferSize),
	}
}

func (c *Connection) Reader() *bufio.Reader { return c.reader }
func (c *Connection) Writer() *bufio.Writer { return c.writer }
func (c *Connection) RemoteAddr() net.Addr  { return c.conn.RemoteAddr() }

// Close releases the input side, then flushes and releases the output side,
// then closes the connection. Every step runs even if an earlier one fails.
// Close is idempotent.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		var errs []error

		if cr, ok := c.conn.(interface{ CloseRead() error }); ok {
			errs = append(errs, cr.CloseRead())
		}

		errs = append(errs, c.writer.Flush())
		if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
			errs = append(errs, cw.CloseWrite())
		}

		errs = append(errs, c.conn.Close())
		c.closeErr = errors.Join(dropClosed(errs)...)
	})
	return c.closeErr
}

// Linger flushes pending output, half-closes the write side and discards
// what the client still sends for a short while. Used after answering a
// request that was not read to the end, so that closing does not reset the
// connection before the client reads the answer.
func (c *Connection) Linger() error {
	if err := c.writer.Flush(); err != nil {
		return err
	}
	if cw, ok := c.conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return err
		}
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(lingerTimeout)); err != nil {
		return err
	}
	_, err := io.Copy(io.Discard, io.LimitReader(c.reader, maxLingerBytes))
	return err
}

// dropClosed filters errors caused by the connection being closed already,
// for example by a forced pool shutdown.
func dropClosed(errs []error) []error {
	out := errs[:0]
	for _, err := range errs {
		if err != nil && !errors.Is(err, net.ErrClosed) {
			out = append(out, err)
		}
	}
	return out
}
