package utils

import (
	"github.com/sirupsen/logrus"
)

var Logger = logrus.New()

// SetupLogger 设置日志级别，无法解析时保持 info
func SetupLogger(level string) {
	Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		Logger.WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	Logger.SetLevel(lvl)
}
