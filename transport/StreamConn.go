package transport

import (
	"io"
	"net"
	"time"

	"github.com/motongxue/fileTransferKit/models"
)

// MessageConn 以消息为单位收发
type MessageConn interface {
	SendMessage(m models.Message) error
	ReceiveMessage() (models.Message, error)
	Close() error
}

var (
	_ MessageConn = (*StreamConn)(nil)
	_ MessageConn = (*DatagramConn)(nil)
)

// StreamConn 面向连接的传输，每条消息占一个定长帧
type StreamConn struct {
	conn  net.Conn
	codec models.Codec
	buf   []byte
}

func NewStreamConn(conn net.Conn, codec models.Codec) *StreamConn {
	return &StreamConn{conn: conn, codec: codec, buf: make([]byte, codec.FrameSize())}
}

// DialStream 连接服务端
func DialStream(addr string, codec models.Codec, timeout time.Duration) (*StreamConn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, &models.IoError{Op: "connect " + addr, Err: err}
	}
	return NewStreamConn(conn, codec), nil
}

func (c *StreamConn) SendMessage(m models.Message) error {
	frame, err := c.codec.Encode(m)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return &models.IoError{Op: "send", Err: err}
	}
	return nil
}

// ReceiveMessage 读满一帧
func (c *StreamConn) ReceiveMessage() (models.Message, error) {
	if _, err := io.ReadFull(c.conn, c.buf); err != nil {
		return models.Message{}, &models.IoError{Op: "receive", Err: err}
	}
	return c.codec.Decode(c.buf)
}

func (c *StreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *StreamConn) Close() error {
	return c.conn.Close()
}
