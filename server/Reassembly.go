package server

import (
	"fmt"

	"github.com/motongxue/fileTransferKit/models"
	"github.com/motongxue/fileTransferKit/utils"
)

// Reassembly 连接无关传输下的窗口重组缓冲区
type Reassembly struct {
	session   *Session
	chunkSize int
	window    int
	buf       []byte
	// 最近一次写入的窗口标记，0 表示本文件尚未写入
	lastMarker int32
}

func NewReassembly(session *Session, geometry utils.ChunkConfig) *Reassembly {
	return &Reassembly{
		session:   session,
		chunkSize: geometry.PayloadSize,
		window:    geometry.Window,
		buf:       make([]byte, geometry.WindowBytes()),
	}
}

// Install 注册 Chunk、ChunkEnd，并在 FileBegin 时重置窗口标记
func (r *Reassembly) Install() {
	begin := r.session.Handler(models.FileBegin)
	r.session.Register(models.FileBegin, func(m models.Message) error {
		if begin != nil {
			if err := begin(m); err != nil {
				return err
			}
		}
		r.lastMarker = 0
		return nil
	})
	r.session.Register(models.Chunk, r.handleChunk)
	r.session.Register(models.ChunkEnd, r.handleChunkEnd)
}

func (r *Reassembly) handleChunk(m models.Message) error {
	if err := r.session.RequireReceiving("HandleChunk"); err != nil {
		return err
	}
	if m.ChunkIndex < 0 || int(m.ChunkIndex) >= r.window {
		return &models.ProtocolError{Op: "HandleChunk", Reason: fmt.Sprintf("chunk index %d out of window [0, %d)", m.ChunkIndex, r.window)}
	}
	data := m.Data()
	if len(data) > r.chunkSize {
		return &models.ProtocolError{Op: "HandleChunk", Reason: fmt.Sprintf("chunk %d carries %d bytes, limit %d", m.ChunkIndex, len(data), r.chunkSize)}
	}
	copy(r.buf[int(m.ChunkIndex)*r.chunkSize:], data)
	return nil
}

func (r *Reassembly) handleChunkEnd(m models.Message) error {
	if err := r.session.RequireReceiving("HandleChunkEnd"); err != nil {
		return err
	}
	if r.lastMarker != 0 && m.ChunkIndex == r.lastMarker {
		r.session.log.WithField("window", m.ChunkIndex).Debug("duplicate ChunkEnd, window already written")
		return nil
	}
	if int(m.PayloadLength) > len(r.buf) {
		return &models.ProtocolError{Op: "HandleChunkEnd", Reason: fmt.Sprintf("window length %d exceeds buffer %d", m.PayloadLength, len(r.buf))}
	}
	if err := r.session.WriteData(r.buf[:m.PayloadLength]); err != nil {
		return err
	}
	r.session.markWindow()
	r.lastMarker = m.ChunkIndex
	return nil
}
