package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
)

// CalMD5 从当前位置读到末尾计算 MD5，完成后回到开头
func CalMD5(r io.ReadSeeker) (string, error) {
	sum := md5.New()
	if _, err := io.Copy(sum, r); err != nil {
		return "", fmt.Errorf("calculate md5: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind after md5: %w", err)
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}
