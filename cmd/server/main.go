package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/motongxue/fileTransferKit/server"
	"github.com/motongxue/fileTransferKit/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	v, err := utils.NewViper(os.Getenv("FT_CONFIG"))
	if err != nil {
		return err
	}
	cfg, err := utils.LoadConfig(v)
	if err != nil {
		return err
	}
	utils.SetupLogger(cfg.LogLevel)

	var opts []server.SessionOption
	if cfg.Redis.Addr != "" {
		store, err := utils.NewRedisStore(context.Background(), cfg.Redis)
		if err != nil {
			// 记录存储不可用时仍然接收文件
			utils.Logger.WithError(err).Warn("redis unavailable, file records kept in memory only")
		} else {
			defer store.Close()
			opts = append(opts, server.WithStore(store))
		}
	}
	session := server.NewSession(cfg.OutputDir, opts...)

	srv, err := server.MakeServer(cfg, session)
	if err != nil {
		return err
	}
	if err := srv.Init(); err != nil {
		return err
	}
	defer srv.Close()

	if cfg.StatusAddr != "" {
		if cfg.LogLevel != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		status := server.ServeStatus(cfg.StatusAddr, session)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			status.Shutdown(ctx)
		}()
	}

	return srv.Run()
}
