package models

import (
	"encoding/binary"
	"fmt"
)

// Tag 消息类型
type Tag uint32

const (
	FileBegin Tag = iota
	FileData
	FileEnd
	Chunk
	ChunkEnd
	Done
	FatalError
	Accepted
)

func (t Tag) String() string {
	switch t {
	case FileBegin:
		return "FileBegin"
	case FileData:
		return "FileData"
	case FileEnd:
		return "FileEnd"
	case Chunk:
		return "Chunk"
	case ChunkEnd:
		return "ChunkEnd"
	case Done:
		return "Done"
	case FatalError:
		return "FatalError"
	case Accepted:
		return "Accepted"
	default:
		return fmt.Sprintf("Tag(%d)", uint32(t))
	}
}

// 控制消息(FileBegin、FileData、FileEnd、Done)的 chunk_index
const ControlIndex int32 = -1

// HeaderSize tag + payload_length + chunk_index
const HeaderSize = 12

// WindowMarker ChunkEnd 的 chunk_index，与分片下标(>=0)和 ControlIndex 不相交
func WindowMarker(seq int) int32 {
	return int32(-2 - seq)
}

// Message 协议帧
type Message struct {
	Tag           Tag
	PayloadLength uint32
	ChunkIndex    int32
	Payload       []byte
}

// NewMessage 由文本构造消息，超出容量的部分在编码时截断
func NewMessage(tag Tag, text string) Message {
	return Message{
		Tag:           tag,
		PayloadLength: uint32(len(text)),
		ChunkIndex:    ControlIndex,
		Payload:       []byte(text),
	}
}

// NewRawMessage 所有字段由调用方给出，用于二进制分片数据
func NewRawMessage(tag Tag, index int32, data []byte) Message {
	return Message{
		Tag:           tag,
		PayloadLength: uint32(len(data)),
		ChunkIndex:    index,
		Payload:       data,
	}
}

// Data 有效载荷
func (m Message) Data() []byte {
	if int(m.PayloadLength) < len(m.Payload) {
		return m.Payload[:m.PayloadLength]
	}
	return m.Payload
}

// Text 文本载荷
func (m Message) Text() string {
	return string(m.Data())
}

// carriesData 载荷为二进制数据，不允许截断
func (t Tag) carriesData() bool {
	return t == FileData || t == Chunk
}

// Codec 定长帧编解码，两端容量必须一致
type Codec struct {
	Capacity int
}

// FrameSize 一帧的字节数
func (c Codec) FrameSize() int {
	return HeaderSize + c.Capacity
}

// Encode 编码为定长帧
func (c Codec) Encode(m Message) ([]byte, error) {
	payload := m.Data()
	length := m.PayloadLength
	if len(payload) > c.Capacity {
		if m.Tag.carriesData() {
			return nil, &ProtocolError{Op: "encode", Reason: fmt.Sprintf("%s payload %d exceeds capacity %d", m.Tag, len(payload), c.Capacity)}
		}
		payload = payload[:c.Capacity]
		length = uint32(c.Capacity)
	}
	if m.Tag != ChunkEnd && int(length) > len(payload) {
		length = uint32(len(payload))
	}

	buf := make([]byte, c.FrameSize())
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.Tag))
	binary.LittleEndian.PutUint32(buf[4:8], length)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.ChunkIndex))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Decode 解码定长帧，ChunkEnd 的 payload_length 为窗口字节数，不受容量限制
func (c Codec) Decode(buf []byte) (Message, error) {
	if len(buf) < c.FrameSize() {
		return Message{}, &ProtocolError{Op: "decode", Reason: fmt.Sprintf("short frame: %d of %d bytes", len(buf), c.FrameSize())}
	}
	m := Message{
		Tag:           Tag(binary.LittleEndian.Uint32(buf[0:4])),
		PayloadLength: binary.LittleEndian.Uint32(buf[4:8]),
		ChunkIndex:    int32(binary.LittleEndian.Uint32(buf[8:12])),
	}
	if m.Tag > Accepted {
		return Message{}, &ProtocolError{Op: "decode", Reason: fmt.Sprintf("unknown tag %d", uint32(m.Tag))}
	}
	if m.Tag == ChunkEnd {
		return m, nil
	}
	if int(m.PayloadLength) > c.Capacity {
		return Message{}, &ProtocolError{Op: "decode", Reason: fmt.Sprintf("%s payload_length %d exceeds capacity %d", m.Tag, m.PayloadLength, c.Capacity)}
	}
	m.Payload = make([]byte, m.PayloadLength)
	copy(m.Payload, buf[HeaderSize:HeaderSize+int(m.PayloadLength)])
	return m, nil
}
