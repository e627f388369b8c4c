package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // data zones must resolve without a system zoneinfo

	"github.com/gin-gonic/gin"

	"github.com/jengzang/ais-anomaly-go/internal/api"
	"github.com/jengzang/ais-anomaly-go/internal/config"
	"github.com/jengzang/ais-anomaly-go/internal/database"
	"github.com/jengzang/ais-anomaly-go/internal/handler"
	"github.com/jengzang/ais-anomaly-go/internal/repository"
	"github.com/jengzang/ais-anomaly-go/internal/service"
	"github.com/jengzang/ais-anomaly-go/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	if err := database.Init(ctx, database.Config{Path: cfg.Database.Path}, log); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	svc := service.NewDetectionService(repository.NewRecordRepository(database.GetDB()), service.Options{
		Segmentation:     cfg.SegmentationOptions(),
		Workers:          cfg.Segmentation.Workers,
		SmallDatasetRows: cfg.Output.SmallDatasetRows,
	}, log)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	router := api.SetupRouter(cfg, handler.NewDetectionHandler(svc, loc), log)
	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		// 启动服务器
		log.Info("Server starting", logger.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
