package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"lshann/internal/config"
	"lshann/internal/index"
	"lshann/internal/server"
	"lshann/pkg/logger"
)

func main() {
	dir := flag.String("dir", ".", "data directory holding config.yaml and indexfile/")
	flag.Parse()

	// 初始化配置
	conf, err := config.NewConfig(*dir)
	if err != nil {
		panic(err)
	}
	if err := logger.InitLogger(conf.Log.Level, conf.Log.File); err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 加载索引
	manager, err := index.NewIndexManager(conf)
	if err != nil {
		logger.Fatal("Failed to open index registry", "dir", conf.Dir, "error", err)
	}
	defer manager.Close()

	// 启动服务器
	srv := &http.Server{
		Addr:    conf.Server.Addr,
		Handler: server.New(conf, manager).Handler(),
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Serving LSH indexes", "addr", conf.Server.Addr, "dir", conf.Dir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down server", "error", err)
	}
	logger.Info("Server exited")
}
