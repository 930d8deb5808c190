package models

import "time"

// FileRecord 服务端接收完成的文件
type FileRecord struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	MD5       string `json:"md5"`
	FileSize  int64  `json:"file_size"`
	// 连接无关传输下写入的窗口数
	Windows    int       `json:"windows"`
	ReceivedAt time.Time `json:"received_at"`
}
