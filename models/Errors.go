package models

import "fmt"

// ProtocolError 会话状态前置条件不满足或帧格式错误
type ProtocolError struct {
	Op     string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("Error: [%s] %s", e.Op, e.Reason)
}

// TransferError 分片重试耗尽、文件无法读写、对端返回 FatalError
type TransferError struct {
	File string
	Err  error
}

func (e *TransferError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("transfer failed: %v", e.Err)
	}
	return fmt.Sprintf("transfer of %s failed: %v", e.File, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// IoError 传输层错误
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// RemoteError 对端 FatalError 的文本
type RemoteError struct {
	Text string
}

func (e *RemoteError) Error() string {
	return e.Text
}
