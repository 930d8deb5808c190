package client

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/motongxue/fileTransferKit/models"
	"github.com/motongxue/fileTransferKit/utils"
	"github.com/sirupsen/logrus"
)

// datagramPeer 支持限时接收的无连接对端
type datagramPeer interface {
	SendMessage(m models.Message) error
	ReceiveWithin(d time.Duration) (models.Message, bool, error)
}

// ChunkWindow 一个窗口的分片和确认状态
type ChunkWindow struct {
	buf       []byte
	chunkSize int
	size      int
	count     int
	acked     []bool
	ackedNum  int
	// 连续无进展的超时轮数
	Retries int
}

func NewChunkWindow(chunkSize, window int) *ChunkWindow {
	return &ChunkWindow{
		buf:       make([]byte, chunkSize*window),
		chunkSize: chunkSize,
		acked:     make([]bool, window),
	}
}

// Buffer 读文件用的整窗缓冲区
func (w *ChunkWindow) Buffer() []byte {
	return w.buf
}

// Load 装入 n 字节，分片数为 ceil(n / chunkSize)
func (w *ChunkWindow) Load(n int) {
	w.size = n
	w.count = (n + w.chunkSize - 1) / w.chunkSize
	for i := range w.acked {
		w.acked[i] = false
	}
	w.ackedNum = 0
	w.Retries = 0
}

func (w *ChunkWindow) Size() int {
	return w.size
}

func (w *ChunkWindow) Count() int {
	return w.count
}

// Chunk 第 i 个分片，最后一个可能较短
func (w *ChunkWindow) Chunk(i int) []byte {
	start := i * w.chunkSize
	end := start + w.chunkSize
	if end > w.size {
		end = w.size
	}
	return w.buf[start:end]
}

// Ack 标记确认，越界和重复确认返回 false
func (w *ChunkWindow) Ack(index int32) bool {
	if index < 0 || int(index) >= w.count || w.acked[index] {
		return false
	}
	w.acked[index] = true
	w.ackedNum++
	return true
}

func (w *ChunkWindow) Acked(i int) bool {
	return w.acked[i]
}

// Complete [0, count) 全部确认
func (w *ChunkWindow) Complete() bool {
	return w.ackedNum == w.count
}

// ChunkSender 分窗口发送文件，只重传未确认的分片
type ChunkSender struct {
	peer datagramPeer
	cfg  utils.ChunkConfig
	log  *logrus.Entry
}

func NewChunkSender(peer datagramPeer, cfg utils.ChunkConfig) *ChunkSender {
	return &ChunkSender{peer: peer, cfg: cfg, log: utils.Logger.WithField("component", "chunk")}
}

// Send 发送 r 的全部字节
func (s *ChunkSender) Send(r io.Reader, name string) error {
	w := NewChunkWindow(s.cfg.PayloadSize, s.cfg.Window)
	log := s.log.WithField("file", name)
	for seq := 0; ; seq++ {
		n, err := io.ReadFull(r, w.Buffer())
		if n > 0 {
			w.Load(n)
			if err := s.sendWindow(w, name, seq); err != nil {
				return err
			}
			if err := s.sendChunkEnd(n, name, seq); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"window": seq, "bytes": n, "chunks": w.Count()}).Debug("window acknowledged")
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return &models.TransferError{File: name, Err: err}
		}
	}
}

func (s *ChunkSender) sendWindow(w *ChunkWindow, name string, seq int) error {
	for {
		for i := 0; i < w.Count(); i++ {
			if w.Acked(i) {
				continue
			}
			if err := s.peer.SendMessage(models.NewRawMessage(models.Chunk, int32(i), w.Chunk(i))); err != nil {
				return err
			}
		}

		progressed := false
		_, err := s.poll(time.Now().Add(s.cfg.AckTimeout), func(m models.Message) (bool, error) {
			switch m.Tag {
			case models.Accepted:
				if w.Ack(m.ChunkIndex) {
					progressed = true
				}
			case models.FatalError:
				if m.ChunkIndex >= 0 {
					return false, &models.TransferError{File: name, Err: &models.RemoteError{Text: m.Text()}}
				}
			}
			return w.Complete(), nil
		})
		if err != nil {
			return err
		}
		if w.Complete() {
			return nil
		}

		if progressed {
			w.Retries = 0
		} else {
			w.Retries++
		}
		if w.Retries > s.cfg.MaxRetries {
			return &models.TransferError{File: name, Err: fmt.Errorf("window %d: no acknowledgment after %d retries", seq, s.cfg.MaxRetries)}
		}
		s.log.WithFields(logrus.Fields{"file": name, "window": seq, "retry": w.Retries}).Warn("acknowledgment timeout, resending missing chunks")
	}
}

// sendChunkEnd payload_length 为窗口实际字节数
func (s *ChunkSender) sendChunkEnd(n int, name string, seq int) error {
	marker := models.WindowMarker(seq)
	end := models.Message{Tag: models.ChunkEnd, PayloadLength: uint32(n), ChunkIndex: marker}
	for attempt := 0; attempt < s.cfg.EndAttempts; attempt++ {
		if err := s.peer.SendMessage(end); err != nil {
			return err
		}
		done, err := s.poll(time.Now().Add(s.cfg.EndDelay), func(m models.Message) (bool, error) {
			if m.ChunkIndex != marker {
				return false, nil
			}
			if m.Tag == models.FatalError {
				return false, &models.TransferError{File: name, Err: &models.RemoteError{Text: m.Text()}}
			}
			return m.Tag == models.Accepted, nil
		})
		if err != nil || done {
			return err
		}
	}
	return &models.TransferError{File: name, Err: fmt.Errorf("window %d: ChunkEnd not acknowledged after %d attempts", seq, s.cfg.EndAttempts)}
}

// poll 在 until 之前逐条处理收到的消息，handle 返回 true 时结束
func (s *ChunkSender) poll(until time.Time, handle func(models.Message) (bool, error)) (bool, error) {
	for {
		remaining := time.Until(until)
		if remaining <= 0 {
			return false, nil
		}
		if remaining > s.cfg.PollInterval {
			remaining = s.cfg.PollInterval
		}
		m, ok, err := s.peer.ReceiveWithin(remaining)
		if err != nil {
			var protoErr *models.ProtocolError
			if errors.As(err, &protoErr) {
				s.log.WithError(err).Debug("malformed datagram dropped")
				continue
			}
			return false, err
		}
		if !ok {
			continue
		}
		done, err := handle(m)
		if err != nil || done {
			return done, err
		}
	}
}
