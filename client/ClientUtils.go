package client

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/motongxue/fileTransferKit/models"
	"github.com/motongxue/fileTransferKit/transport"
	"github.com/motongxue/fileTransferKit/utils"
)

// TcpTransport 连接后逐帧发送 FileData，每帧等待应答
type TcpTransport struct {
	addr    string
	codec   models.Codec
	timeout time.Duration
	conn    *transport.StreamConn
}

func NewTcpTransport(addr string, codec models.Codec, dialTimeout time.Duration) *TcpTransport {
	return &TcpTransport{addr: addr, codec: codec, timeout: dialTimeout}
}

func (t *TcpTransport) Init() error {
	conn, err := transport.DialStream(t.addr, t.codec, t.timeout)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

func (t *TcpTransport) SendMessage(m models.Message) error {
	return t.conn.SendMessage(m)
}

func (t *TcpTransport) ReceiveMessage() (models.Message, error) {
	return t.conn.ReceiveMessage()
}

// SendFile 读满一帧容量发送一次，文件为空时不发送 FileData
func (t *TcpTransport) SendFile(file io.Reader, name string) error {
	buffer := make([]byte, t.codec.Capacity)
	for {
		n, err := io.ReadFull(file, buffer)
		if n > 0 {
			if err := exchange(t, models.NewRawMessage(models.FileData, models.ControlIndex, buffer[:n])); err != nil {
				return err
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return &models.TransferError{File: name, Err: fmt.Errorf("error reading file: %w", err)}
		}
	}
}

func (t *TcpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

// UdpTransport 文件经 ChunkSender 发送，握手应答限时等待
type UdpTransport struct {
	addr             string
	codec            models.Codec
	chunk            utils.ChunkConfig
	handshakeTimeout time.Duration
	conn             *transport.DatagramConn
}

func NewUdpTransport(addr string, codec models.Codec, chunk utils.ChunkConfig, handshakeTimeout time.Duration) *UdpTransport {
	return &UdpTransport{addr: addr, codec: codec, chunk: chunk, handshakeTimeout: handshakeTimeout}
}

// Init 只创建套接字并记录对端地址
func (t *UdpTransport) Init() error {
	conn, err := transport.NewPeerDatagram(t.addr, t.codec)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

func (t *UdpTransport) SendMessage(m models.Message) error {
	return t.conn.SendMessage(m)
}

func (t *UdpTransport) ReceiveMessage() (models.Message, error) {
	m, ok, err := t.conn.ReceiveWithin(t.handshakeTimeout)
	if err != nil {
		return models.Message{}, err
	}
	if !ok {
		return models.Message{}, &models.IoError{Op: "receive", Err: fmt.Errorf("no reply within %v", t.handshakeTimeout)}
	}
	return m, nil
}

func (t *UdpTransport) SendFile(file io.Reader, name string) error {
	return NewChunkSender(t.conn, t.chunk).Send(file, name)
}

func (t *UdpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
