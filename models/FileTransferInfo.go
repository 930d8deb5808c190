package models

// SessionStatus 会话快照
type SessionStatus struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	// 正在接收的文件
	CurrentFile  string `json:"current_file,omitempty"`
	BytesWritten int64  `json:"bytes_written"`
	// 已接收文件列表
	Received []FileRecord `json:"received"`
}
