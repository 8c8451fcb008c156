package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopherdex.com/internal/gateway/app"
	"gopherdex.com/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the engine and the background crank",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// 支持 Ctrl+C / kubernetes 停止信号
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dexApp, err := app.New(serviceName, configFile)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			dexApp.Close(closeCtx)
		}()
		if err := dexApp.Start(ctx); err != nil {
			logger.Error(ctx, "start failed", zap.Error(err))
			return err
		}
		err = dexApp.Run(ctx)
		logger.Info(context.Background(), "dex-service exit", zap.Error(err))
		return err
	},
}
