package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/motongxue/fileTransferKit/models"
)

// DatagramConn 无连接传输，一个数据报一帧
type DatagramConn struct {
	conn  *net.UDPConn
	codec models.Codec
	// 客户端保存的对端地址，不 connect
	peer *net.UDPAddr
	buf  []byte
}

// ListenDatagram 绑定本地地址
func ListenDatagram(addr string, codec models.Codec) (*DatagramConn, error) {
	local, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &models.IoError{Op: "resolve " + addr, Err: err}
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, &models.IoError{Op: "bind " + addr, Err: err}
	}
	return &DatagramConn{conn: conn, codec: codec, buf: newDatagramBuffer(codec)}, nil
}

// NewPeerDatagram 创建套接字并记录对端地址
func NewPeerDatagram(addr string, codec models.Codec) (*DatagramConn, error) {
	peer, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &models.IoError{Op: "resolve " + addr, Err: err}
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, &models.IoError{Op: "socket", Err: err}
	}
	return &DatagramConn{conn: conn, codec: codec, peer: peer, buf: newDatagramBuffer(codec)}, nil
}

func (c *DatagramConn) SendTo(m models.Message, to *net.UDPAddr) error {
	frame, err := c.codec.Encode(m)
	if err != nil {
		return err
	}
	if _, err := c.conn.WriteToUDP(frame, to); err != nil {
		return &models.IoError{Op: "send to " + to.String(), Err: err}
	}
	return nil
}

// ReadFrom 阻塞读取一帧；帧格式错误时返回 *models.ProtocolError 和发送方地址
func (c *DatagramConn) ReadFrom() (models.Message, *net.UDPAddr, error) {
	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		return models.Message{}, nil, &models.IoError{Op: "receive", Err: err}
	}
	return c.read()
}

// ReceiveWithin 最多等待 d，超时返回 ok=false
func (c *DatagramConn) ReceiveWithin(d time.Duration) (models.Message, bool, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		return models.Message{}, false, &models.IoError{Op: "receive", Err: err}
	}
	m, _, err := c.read()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return models.Message{}, false, nil
		}
		return models.Message{}, false, err
	}
	return m, true, nil
}

func (c *DatagramConn) read() (models.Message, *net.UDPAddr, error) {
	n, from, err := c.conn.ReadFromUDP(c.buf)
	if err != nil {
		return models.Message{}, nil, &models.IoError{Op: "receive", Err: err}
	}
	if n > c.codec.FrameSize() {
		return models.Message{}, from, &models.ProtocolError{Op: "decode", Reason: fmt.Sprintf("oversized datagram: more than %d bytes", c.codec.FrameSize())}
	}
	m, err := c.codec.Decode(c.buf[:n])
	return m, from, err
}

// newDatagramBuffer 多留一个字节，用于识别超长数据报
func newDatagramBuffer(codec models.Codec) []byte {
	return make([]byte, codec.FrameSize()+1)
}

// SendMessage 发往记录的对端
func (c *DatagramConn) SendMessage(m models.Message) error {
	if c.peer == nil {
		return &models.IoError{Op: "send", Err: errors.New("no peer address")}
	}
	return c.SendTo(m, c.peer)
}

// ReceiveMessage 阻塞读取一帧
func (c *DatagramConn) ReceiveMessage() (models.Message, error) {
	m, _, err := c.ReadFrom()
	return m, err
}

func (c *DatagramConn) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

func (c *DatagramConn) Close() error {
	return c.conn.Close()
}
