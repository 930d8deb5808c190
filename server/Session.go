package server

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/motongxue/fileTransferKit/models"
	"github.com/motongxue/fileTransferKit/utils"
	"github.com/sirupsen/logrus"
)

type TransferState int

const (
	Idle TransferState = iota
	ReceivingFile
	Finished
)

func (s TransferState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case ReceivingFile:
		return "ReceivingFile"
	case Finished:
		return "Finished"
	default:
		return "undefined"
	}
}

// Handler 处理一条消息
type Handler func(m models.Message) error

// Session 一次运行中的接收会话，独占当前打开的文件
type Session struct {
	ID        string
	outputDir string
	store     utils.TransferStore
	log       *logrus.Entry

	handlers map[models.Tag]Handler

	// mu 保护以下字段，供状态接口并发读取
	mu       sync.RWMutex
	state    TransferState
	file     *os.File
	fileName string
	written  int64
	windows  int
	hash     hash.Hash
	received []models.FileRecord
}

type SessionOption func(*Session)

// WithStore 接收完成的文件记录写入 store
func WithStore(store utils.TransferStore) SessionOption {
	return func(s *Session) {
		s.store = store
	}
}

// NewSession 创建 Idle 会话并注册基础处理函数
func NewSession(outputDir string, opts ...SessionOption) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		outputDir: outputDir,
		handlers:  make(map[models.Tag]Handler),
		state:     Idle,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = utils.Logger.WithField("session", s.ID)

	s.Register(models.FileBegin, s.handleFileBegin)
	s.Register(models.FileData, s.handleFileData)
	s.Register(models.FileEnd, s.handleFileEnd)
	s.Register(models.Done, s.handleDone)
	return s
}

// Register 注册或覆盖处理函数
func (s *Session) Register(tag models.Tag, h Handler) {
	s.handlers[tag] = h
}

// Handler 当前注册的处理函数
func (s *Session) Handler(tag models.Tag) Handler {
	return s.handlers[tag]
}

// Dispatch 未注册的消息类型直接忽略
func (s *Session) Dispatch(m models.Message) error {
	h, ok := s.handlers[m.Tag]
	if !ok {
		s.log.WithField("tag", m.Tag).Debug("no handler, message ignored")
		return nil
	}
	return h(m)
}

func (s *Session) State() TransferState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RequireReceiving 要求处于 ReceivingFile 且文件已打开
func (s *Session) RequireReceiving(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != ReceivingFile || s.file == nil {
		return &models.ProtocolError{Op: op, Reason: "file not opened or transfer state not ReceivingFile"}
	}
	return nil
}

func (s *Session) requireIdle(op string) error {
	if s.state != Idle || s.file != nil {
		return &models.ProtocolError{Op: op, Reason: "file opened or transfer state not Idle"}
	}
	return nil
}

func (s *Session) handleFileBegin(m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireIdle("HandleFileBegin"); err != nil {
		return err
	}
	name, err := utils.SanitizeFileName(m.Text())
	if err != nil {
		return &models.ProtocolError{Op: "HandleFileBegin", Reason: err.Error()}
	}
	file, err := utils.CreateOutputFile(s.outputDir, name)
	if err != nil {
		return &models.TransferError{File: name, Err: fmt.Errorf("failed open file: %w", err)}
	}

	s.file = file
	s.fileName = name
	s.written = 0
	s.windows = 0
	s.hash = md5.New()
	s.state = ReceivingFile
	s.log.WithField("file", name).Info("load new file")
	return nil
}

func (s *Session) handleFileData(m models.Message) error {
	if err := s.RequireReceiving("HandleFileData"); err != nil {
		return err
	}
	return s.WriteData(m.Data())
}

// WriteData 追加写入当前文件，失败时关闭文件回到 Idle
func (s *Session) WriteData(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return &models.ProtocolError{Op: "WriteData", Reason: "no open file"}
	}
	if _, err := io.MultiWriter(s.file, s.hash).Write(data); err != nil {
		name := s.fileName
		s.closeFile()
		return &models.TransferError{File: name, Err: err}
	}
	s.written += int64(len(data))
	return nil
}

// markWindow 记录一次窗口写入
func (s *Session) markWindow() {
	s.mu.Lock()
	s.windows++
	s.mu.Unlock()
}

func (s *Session) handleFileEnd(m models.Message) error {
	s.mu.Lock()
	if s.state != ReceivingFile || s.file == nil {
		s.mu.Unlock()
		return &models.ProtocolError{Op: "HandleFileEnd", Reason: "file not opened or transfer state not ReceivingFile"}
	}
	record := models.FileRecord{
		SessionID:  s.ID,
		Name:       s.fileName,
		MD5:        hex.EncodeToString(s.hash.Sum(nil)),
		FileSize:   s.written,
		Windows:    s.windows,
		ReceivedAt: time.Now(),
	}
	file := s.file
	s.file = nil
	err := file.Close()
	s.closeFile()
	if err != nil {
		s.mu.Unlock()
		return &models.TransferError{File: record.Name, Err: err}
	}
	s.received = append(s.received, record)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"file": record.Name, "size": record.FileSize, "md5": record.MD5}).Info("file received")
	if s.store != nil {
		if err := s.store.SaveRecord(context.Background(), record); err != nil {
			s.log.WithError(err).WithField("file", record.Name).Warn("failed to save file record")
		}
	}
	return nil
}

func (s *Session) handleDone(m models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireIdle("HandleDone"); err != nil {
		return err
	}
	s.state = Finished
	s.log.WithField("files", len(s.received)).Info("session finished")
	return nil
}

// closeFile 调用方持有 mu
func (s *Session) closeFile() {
	if s.file != nil {
		s.file.Close()
	}
	s.file = nil
	s.fileName = ""
	s.hash = nil
	if s.state == ReceivingFile {
		s.state = Idle
	}
}

// Close 关闭遗留的文件
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.log.WithField("file", s.fileName).Warn("closing unfinished file")
	}
	s.closeFile()
	return nil
}

// Status 会话快照
func (s *Session) Status() models.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := models.SessionStatus{
		SessionID:    s.ID,
		State:        s.state.String(),
		CurrentFile:  s.fileName,
		BytesWritten: s.written,
		Received:     make([]models.FileRecord, len(s.received)),
	}
	copy(status.Received, s.received)
	return status
}

// Record 按文件名查询已接收记录，同名取最后一次
func (s *Session) Record(name string) (models.FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.received) - 1; i >= 0; i-- {
		if s.received[i].Name == name {
			return s.received[i], true
		}
	}
	return models.FileRecord{}, false
}
