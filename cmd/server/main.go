package main

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hsn0918/filingtree/internal/app"
	"github.com/hsn0918/filingtree/internal/logger"
)

func main() {
	fxApp := fx.New(
		app.Module,
		fx.NopLogger,
	)

	// Start application with timeout
	startCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()

	if err := fxApp.Start(startCtx); err != nil {
		logger.Get().Error("application startup failed", zap.Error(err))
		os.Exit(1)
	}

	// Wait for application termination
	<-fxApp.Done()

	// Stop application gracefully
	stopCtx, stopCancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer stopCancel()

	if err := fxApp.Stop(stopCtx); err != nil {
		logger.Get().Error("application shutdown failed", zap.Error(err))
	}
}
