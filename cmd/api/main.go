package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tar-bin/udoris-core/internal/api"
	"github.com/tar-bin/udoris-core/internal/config"
	"github.com/tar-bin/udoris-core/internal/database"
	"github.com/tar-bin/udoris-core/internal/logger"
	"github.com/tar-bin/udoris-core/internal/services/tetris"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout); err != nil {
		logger.Log.Fatalf("ロガーの設定に失敗しました: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := database.NewMemoryResultRepository()
	sessionManager := tetris.NewSessionManager(cfg, results)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(sessionManager, results, cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sessionManager.Run(gctx)
	})
	g.Go(func() error {
		logger.Log.Infof("サーバーを %s で起動します", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("シャットダウンします...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Log.Fatalf("サーバーが異常終了しました: %v", err)
	}
	logger.Log.Info("サーバーを停止しました")
}
