package server

import (
	"errors"

	"github.com/motongxue/fileTransferKit/models"
	"github.com/sirupsen/logrus"
)

const acceptedText = "Data accepted."

// conversation 当前对端的收发
type conversation interface {
	receive() (models.Message, error)
	reply(m models.Message) error
}

func answer(tag models.Tag, text string, index int32) models.Message {
	m := models.NewMessage(tag, text)
	m.ChunkIndex = index
	return m
}

// serve 接收、分发、应答，直到会话结束；处理函数的错误转为 FatalError 应答，循环继续
func serve(session *Session, conv conversation) error {
	for session.State() != Finished {
		m, err := conv.receive()
		if err != nil {
			var protoErr *models.ProtocolError
			if !errors.As(err, &protoErr) {
				return err
			}
			session.log.WithError(err).Warn("malformed message")
			if err := conv.reply(answer(models.FatalError, err.Error(), models.ControlIndex)); err != nil {
				return err
			}
			continue
		}

		if err := session.Dispatch(m); err != nil {
			session.log.WithFields(logrus.Fields{"tag": m.Tag, "chunk": m.ChunkIndex}).WithError(err).Warn("message rejected")
			if err := conv.reply(answer(models.FatalError, err.Error(), m.ChunkIndex)); err != nil {
				return err
			}
			continue
		}

		if err := conv.reply(answer(models.Accepted, acceptedText, m.ChunkIndex)); err != nil {
			return err
		}
	}
	return nil
}
