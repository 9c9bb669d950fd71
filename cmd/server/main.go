package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blues/poolparty/internal/chain"
	"github.com/blues/poolparty/internal/config"
	"github.com/blues/poolparty/internal/database"
	"github.com/blues/poolparty/internal/logger"
	"github.com/blues/poolparty/internal/logic"
	"github.com/blues/poolparty/internal/pool"
	"github.com/blues/poolparty/internal/resolver"
	"github.com/blues/poolparty/internal/router"
	"github.com/blues/poolparty/internal/task"
)

func main() {
	// 加载配置
	cfg := config.Load()

	if err := logger.Init(cfg.Log); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化链客户端
	ctx := context.Background()
	manager, err := chain.NewManager(ctx, cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to initialize chain manager: %v", err)
	}
	defer manager.Close()
	if len(manager.CustodyAccounts()) == 0 {
		logger.Warn("No custody keys configured, pools cannot be created")
	}

	admins, err := resolver.NewStaticResolver(cfg.Admins)
	if err != nil {
		logger.Fatal("Failed to load admins: %v", err)
	}

	deps := pool.Dependencies{
		Binder: chain.NewBinder(manager),
		Vault:  manager,
	}
	registryLogic := logic.NewRegistryLogic(db, admins, manager, deps, cfg.Pool)
	poolLogic := logic.NewPoolLogic(db, deps, manager)
	recordLogic := logic.NewRecordLogic(db)

	// 初始化路由
	r := router.Setup(router.Services{
		Registry: registryLogic,
		Pools:    poolLogic,
		Records:  recordLogic,
		Health:   manager.GetHealthStatus,
	}, cfg.Server)

	// 启动定时任务
	interval := time.Duration(cfg.Task.Interval) * time.Second
	tasks, err := task.NewManager(
		task.NewAssetSyncJob(db, poolLogic, interval, cfg.Task.Workers),
		task.NewPoolStatusJob(db, interval),
	)
	if err != nil {
		logger.Fatal("Failed to create task manager: %v", err)
	}
	tasks.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	tasks.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
	}
	logger.Info("Server exited")
}
