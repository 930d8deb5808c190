package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BaseName 去掉 "/" 和 "\" 分隔的目录部分
func BaseName(name string) string {
	if pos := strings.LastIndexAny(name, `/\`); pos >= 0 {
		return name[pos+1:]
	}
	return name
}

// SanitizeFileName 只保留最后一段路径，拒绝空名、"." 和 ".."
func SanitizeFileName(name string) (string, error) {
	base := BaseName(strings.TrimRight(name, "\x00"))
	if base == "" || base == "." || base == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return base, nil
}

// CreateOutputFile 在输出目录中截断创建文件
func CreateOutputFile(outputDir, name string) (*os.File, error) {
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(outputDir, name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
}
