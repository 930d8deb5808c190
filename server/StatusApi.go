package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/motongxue/fileTransferKit/utils"
)

// NewStatusRouter 会话状态查询接口；配置了记录存储时可查询过去会话
func NewStatusRouter(session *Session) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/status", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, session.Status())
	})
	engine.GET("/files", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, session.Status().Received)
	})
	engine.GET("/files/:name", func(ctx *gin.Context) {
		name := ctx.Param("name")
		if record, ok := session.Record(name); ok {
			ctx.JSON(http.StatusOK, record)
			return
		}
		// 内存中没有时查存储
		respondRecord(ctx, session, session.ID, name)
	})

	sessions := engine.Group("/sessions/:id")
	sessions.GET("/files", func(ctx *gin.Context) {
		if session.store == nil {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "no record store"})
			return
		}
		names, err := session.store.SessionFiles(ctx.Request.Context(), ctx.Param("id"))
		if err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if names == nil {
			names = []string{}
		}
		ctx.JSON(http.StatusOK, names)
	})
	sessions.GET("/files/:name", func(ctx *gin.Context) {
		respondRecord(ctx, session, ctx.Param("id"), ctx.Param("name"))
	})
	return engine
}

func respondRecord(ctx *gin.Context, session *Session, sessionID, name string) {
	if session.store == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	record, err := session.store.GetRecord(ctx.Request.Context(), sessionID, name)
	switch {
	case errors.Is(err, utils.ErrRecordNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
	case err != nil:
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		ctx.JSON(http.StatusOK, record)
	}
}

// ServeStatus 后台启动状态接口
func ServeStatus(addr string, session *Session) *http.Server {
	srv := &http.Server{Addr: addr, Handler: NewStatusRouter(session)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			session.log.WithError(err).Warn("status api stopped")
		}
	}()
	session.log.WithField("addr", addr).Info("status api started")
	return srv
}
