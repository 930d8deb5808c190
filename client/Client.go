package client

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/motongxue/fileTransferKit/models"
	"github.com/motongxue/fileTransferKit/utils"
	"github.com/sirupsen/logrus"
)

// messenger 收发一条消息
type messenger interface {
	SendMessage(m models.Message) error
	ReceiveMessage() (models.Message, error)
}

// ProtocolTransport 一种传输方式下的客户端能力
type ProtocolTransport interface {
	messenger
	Init() error
	SendFile(file io.Reader, name string) error
	Close() error
}

// Client 依次发送文件列表
type Client struct {
	transport ProtocolTransport
	log       *logrus.Entry
}

func NewClient(t ProtocolTransport) *Client {
	return &Client{transport: t, log: utils.Logger.WithField("component", "client")}
}

// MakeClient 按配置的传输方式创建客户端
func MakeClient(cfg utils.Config) (*Client, error) {
	codec := models.Codec{Capacity: cfg.PayloadCapacity()}
	switch cfg.Transport {
	case utils.TransportTCP:
		return NewClient(NewTcpTransport(cfg.Endpoint(), codec, cfg.HandshakeTimeout)), nil
	case utils.TransportUDP:
		return NewClient(NewUdpTransport(cfg.Endpoint(), codec, cfg.Chunk, cfg.HandshakeTimeout)), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func (c *Client) Init() error {
	return c.transport.Init()
}

func (c *Client) Close() error {
	return c.transport.Close()
}

// Transfer 任一步骤失败即中止整个列表
func (c *Client) Transfer(files []string) error {
	for _, path := range files {
		if err := c.transferFile(path); err != nil {
			return err
		}
	}
	if err := exchange(c.transport, models.NewMessage(models.Done, "Done.")); err != nil {
		return wrapTransfer("", err)
	}
	c.log.WithField("files", len(files)).Info("transfer done")
	return nil
}

func (c *Client) transferFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return &models.TransferError{File: path, Err: fmt.Errorf("failed load file: %w", err)}
	}
	defer file.Close()

	md5Str, err := utils.CalMD5(file)
	if err != nil {
		return &models.TransferError{File: path, Err: err}
	}
	name := utils.BaseName(path)
	log := c.log.WithFields(logrus.Fields{"file": name, "md5": md5Str})

	if err := exchange(c.transport, models.NewMessage(models.FileBegin, name)); err != nil {
		return wrapTransfer(name, err)
	}
	log.Info("file begin")

	if err := c.transport.SendFile(file, name); err != nil {
		return wrapTransfer(name, err)
	}

	if err := exchange(c.transport, models.Message{Tag: models.FileEnd, ChunkIndex: models.ControlIndex}); err != nil {
		return wrapTransfer(name, err)
	}
	log.Info("file sent")
	return nil
}

// exchange 发送并等待对应的应答，FatalError 转为 *models.RemoteError
func exchange(t messenger, m models.Message) error {
	if err := t.SendMessage(m); err != nil {
		return err
	}
	return checkAnswer(t, m.ChunkIndex)
}

// checkAnswer 跳过 chunk_index 不匹配的过期应答
func checkAnswer(t messenger, index int32) error {
	for {
		reply, err := t.ReceiveMessage()
		if err != nil {
			var protoErr *models.ProtocolError
			if errors.As(err, &protoErr) {
				continue
			}
			return err
		}
		if reply.ChunkIndex != index {
			continue
		}
		switch reply.Tag {
		case models.FatalError:
			return &models.RemoteError{Text: reply.Text()}
		case models.Accepted:
			return nil
		}
	}
}

func wrapTransfer(name string, err error) error {
	var transferErr *models.TransferError
	if errors.As(err, &transferErr) {
		return err
	}
	return &models.TransferError{File: name, Err: err}
}
