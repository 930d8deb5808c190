package server

import (
	"fmt"
	"net"

	"github.com/motongxue/fileTransferKit/models"
	"github.com/motongxue/fileTransferKit/transport"
	"github.com/motongxue/fileTransferKit/utils"
)

// Server 每次运行服务一个会话
type Server interface {
	Init() error
	Run() error
	Addr() net.Addr
	Session() *Session
	Close() error
}

// MakeServer 按配置的传输方式创建服务端
func MakeServer(cfg utils.Config, session *Session) (Server, error) {
	codec := models.Codec{Capacity: cfg.PayloadCapacity()}
	switch cfg.Transport {
	case utils.TransportTCP:
		return &TcpServer{cfg: cfg, codec: codec, session: session}, nil
	case utils.TransportUDP:
		return &UdpServer{cfg: cfg, codec: codec, session: session}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// TcpServer 只接受一个客户端连接
type TcpServer struct {
	cfg      utils.Config
	codec    models.Codec
	session  *Session
	listener net.Listener
}

func (s *TcpServer) Init() error {
	listener, err := net.Listen("tcp", s.cfg.Endpoint())
	if err != nil {
		return &models.IoError{Op: "listen " + s.cfg.Endpoint(), Err: err}
	}
	s.listener = listener
	s.session.log.WithField("addr", listener.Addr().String()).Info("tcp server started")
	return nil
}

func (s *TcpServer) Run() error {
	conn, err := s.listener.Accept()
	if err != nil {
		return &models.IoError{Op: "failed accept", Err: err}
	}
	stream := transport.NewStreamConn(conn, s.codec)
	defer stream.Close()
	s.session.log.WithField("peer", stream.RemoteAddr().String()).Info("client connected")

	return serve(s.session, &streamConversation{conn: stream})
}

func (s *TcpServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *TcpServer) Session() *Session {
	return s.session
}

func (s *TcpServer) Close() error {
	s.session.Close()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

type streamConversation struct {
	conn *transport.StreamConn
}

func (c *streamConversation) receive() (models.Message, error) {
	return c.conn.ReceiveMessage()
}

func (c *streamConversation) reply(m models.Message) error {
	return c.conn.SendMessage(m)
}

// UdpServer 应答发往最近一条消息的发送方
type UdpServer struct {
	cfg     utils.Config
	codec   models.Codec
	session *Session
	conn    *transport.DatagramConn
}

func (s *UdpServer) Init() error {
	conn, err := transport.ListenDatagram(s.cfg.Endpoint(), s.codec)
	if err != nil {
		return err
	}
	s.conn = conn
	NewReassembly(s.session, s.cfg.Chunk).Install()
	s.session.log.WithField("addr", conn.LocalAddr().String()).Info("udp server started")
	return nil
}

func (s *UdpServer) Run() error {
	return serve(s.session, &datagramConversation{conn: s.conn})
}

func (s *UdpServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

func (s *UdpServer) Session() *Session {
	return s.session
}

func (s *UdpServer) Close() error {
	s.session.Close()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

type datagramConversation struct {
	conn *transport.DatagramConn
	peer *net.UDPAddr
}

func (c *datagramConversation) receive() (models.Message, error) {
	m, from, err := c.conn.ReadFrom()
	if from != nil {
		c.peer = from
	}
	return m, err
}

func (c *datagramConversation) reply(m models.Message) error {
	if c.peer == nil {
		return nil
	}
	return c.conn.SendTo(m, c.peer)
}
