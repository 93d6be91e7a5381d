package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koopa0/system-design/14-realtime-pong/internal/config"
	"github.com/koopa0/system-design/14-realtime-pong/internal/events"
	"github.com/koopa0/system-design/14-realtime-pong/internal/gateway"
	"github.com/koopa0/system-design/14-realtime-pong/internal/matches"
	"github.com/koopa0/system-design/14-realtime-pong/internal/ratelimit"
	"github.com/koopa0/system-design/14-realtime-pong/internal/room"
	"github.com/koopa0/system-design/14-realtime-pong/pkg/logger"
)

func main() {
	// 解析命令行參數
	var (
		configPath = flag.String("config", "", "配置檔路徑 (YAML)")
		port       = flag.Int("port", 0, "服務器端口，覆蓋配置檔")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	// 載入配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入配置失敗: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置無效: %v\n", err)
		os.Exit(1)
	}

	// 設置日誌
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "建立日誌失敗: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("服務器異常結束", "error", err)
		os.Exit(1)
	}
}

// run 組裝所有元件並阻塞到收到關閉信號
func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	// 建立房間的限流（可選）
	var limiter ratelimit.Limiter = ratelimit.AllowAll{}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			// 限流是輔助功能，Redis 不可用時照常服務
			log.Warn("無法連接 Redis，限流檢查失敗時放行", "addr", cfg.Redis.Addr, "error", err)
		}
		limiter = ratelimit.NewRedisBucket(client, cfg.Redis.CreateCapacity, cfg.Redis.CreateRefillRate)
		log.Info("已啟用建立房間限流",
			"capacity", cfg.Redis.CreateCapacity,
			"refill_rate", cfg.Redis.CreateRefillRate)
	}

	// 對戰紀錄（可選）
	var (
		store    matches.Store = matches.Nop{}
		recorder *matches.Recorder
	)
	if cfg.Postgres.DSN != "" {
		if err := matches.Migrate(cfg.Postgres.DSN, log); err != nil {
			return fmt.Errorf("執行資料庫遷移失敗: %w", err)
		}

		pool, err := matches.Connect(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
		if err != nil {
			return fmt.Errorf("連接 PostgreSQL 失敗: %w", err)
		}
		defer pool.Close()

		store = matches.NewPostgresStore(pool)
		recorder = matches.NewRecorder(store, log, matches.DefaultRecorderBuffer)
		defer recorder.Close()
		log.Info("已啟用對戰紀錄")
	}

	// 房間生命週期事件（可選）
	var publisher events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		p, err := events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			return fmt.Errorf("連接 NATS 失敗: %w", err)
		}
		publisher = p
		log.Info("已啟用事件發布", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("關閉事件發布失敗", "error", err)
		}
	}()

	registry := room.NewRegistry(
		room.WithField(cfg.Game.Width, cfg.Game.Height, cfg.Game.PaddleHeight),
		room.WithMaxRooms(cfg.Game.MaxRooms),
	)

	opts := gateway.Options{
		TickInterval: cfg.TickInterval(),
		PublicURL:    cfg.Server.PublicURL,
		Limiter:      limiter,
		Publisher:    publisher,
	}
	if recorder != nil {
		opts.Recorder = recorder
	}
	gw := gateway.New(registry, log, opts)

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go func() {
		if err := gw.Run(loopCtx); err != nil {
			log.Error("事件迴圈異常結束", "error", err)
		}
	}()

	hub := gateway.NewHub(gw, log, gateway.HubConfig{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		SendBuffer:      cfg.WebSocket.SendBuffer,
		MaxMessageSize:  cfg.WebSocket.MaxMessageSize,
		PongWait:        cfg.WebSocket.PongWait,
		PingPeriod:      cfg.WebSocket.PingPeriod,
		WriteWait:       cfg.WebSocket.WriteWait,
	})
	handler := gateway.NewHandler(gw, hub, store, log)

	// 創建 HTTP 服務器
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Pong 服務器啟動",
			"addr", srv.Addr,
			"tick_rate", cfg.Game.TickRate,
			"log_level", cfg.Log.Level)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("服務器錯誤: %w", err)
		}

	case sig := <-shutdown:
		log.Info("收到關閉信號，開始優雅關閉...", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// 停止接受新連接
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("服務器關閉失敗", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("強制關閉服務器失敗", "error", closeErr)
			}
		}
	}

	// 停止所有房間並關閉連線的發送端
	stopLoop()
	select {
	case <-gw.Done():
	case <-time.After(cfg.Server.ShutdownTimeout):
		log.Warn("等待事件迴圈結束逾時")
	}

	// 等待讀寫 goroutine 結束
	hub.Close()

	log.Info("服務器已關閉")
	return runErr
}
