// Package config 載入伺服器配置
//
// 優先順序（後者覆蓋前者）：預設值 → YAML 檔案 → 環境變數 → 命令列旗標。
// 命令列旗標在 cmd/server 中處理。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		PublicURL       string        `yaml:"public_url"` // 分享連結的基底，空字串時不產生
	} `yaml:"server"`

	Game struct {
		TickRate     int     `yaml:"tick_rate"`
		Width        float64 `yaml:"width"`
		Height       float64 `yaml:"height"`
		PaddleHeight float64 `yaml:"paddle_height"`
		MaxRooms     int     `yaml:"max_rooms"`
	} `yaml:"game"`

	WebSocket struct {
		ReadBufferSize  int           `yaml:"read_buffer_size"`
		WriteBufferSize int           `yaml:"write_buffer_size"`
		SendBuffer      int           `yaml:"send_buffer"`
		MaxMessageSize  int64         `yaml:"max_message_size"`
		PongWait        time.Duration `yaml:"pong_wait"`
		PingPeriod      time.Duration `yaml:"ping_period"`
		WriteWait       time.Duration `yaml:"write_wait"`
	} `yaml:"websocket"`

	Redis struct {
		Addr             string  `yaml:"addr"`
		Password         string  `yaml:"password"`
		DB               int     `yaml:"db"`
		CreateCapacity   int64   `yaml:"create_capacity"`    // 建立房間的突發上限
		CreateRefillRate float64 `yaml:"create_refill_rate"` // 每秒補充
	} `yaml:"redis"`

	Postgres struct {
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`
	} `yaml:"postgres"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
}

// Default 返回預設配置
//
// Redis、PostgreSQL、NATS 預設關閉。
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Port = 3000
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Game.TickRate = 60
	cfg.Game.Width = 800
	cfg.Game.Height = 600
	cfg.Game.PaddleHeight = 100
	cfg.Game.MaxRooms = 10000

	cfg.WebSocket.ReadBufferSize = 1024
	cfg.WebSocket.WriteBufferSize = 1024
	cfg.WebSocket.SendBuffer = 256
	cfg.WebSocket.MaxMessageSize = 512
	cfg.WebSocket.PongWait = 60 * time.Second
	cfg.WebSocket.PingPeriod = 54 * time.Second
	cfg.WebSocket.WriteWait = 10 * time.Second

	cfg.Redis.CreateCapacity = 5
	cfg.Redis.CreateRefillRate = 0.2

	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2

	cfg.NATS.SubjectPrefix = "pong"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"

	return cfg
}

// Load 讀取配置檔並套用環境變數
//
// path 為空時只使用預設值與環境變數。檔案中未出現的欄位保留預設值。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - 路徑來自命令列
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置檔失敗: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv 環境變數覆蓋（生產環境常用）
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("無效的 PORT: %q", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	return nil
}

// Validate 檢查配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 超出範圍: %d", c.Server.Port))
	}
	if c.Game.TickRate <= 0 {
		errs = append(errs, fmt.Errorf("game.tick_rate 必須大於 0"))
	}
	if c.Game.Width <= 0 || c.Game.Height <= 0 {
		errs = append(errs, fmt.Errorf("game 場地大小必須大於 0"))
	}
	if c.Game.PaddleHeight <= 0 || c.Game.PaddleHeight > c.Game.Height {
		errs = append(errs, fmt.Errorf("game.paddle_height 必須在 (0, height] 之間"))
	}
	if c.Game.MaxRooms < 0 {
		errs = append(errs, fmt.Errorf("game.max_rooms 不能為負數"))
	}
	if c.WebSocket.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("websocket.send_buffer 必須大於 0"))
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		errs = append(errs, fmt.Errorf("websocket.ping_period 必須小於 pong_wait"))
	}
	if c.Redis.Addr != "" && (c.Redis.CreateCapacity <= 0 || c.Redis.CreateRefillRate <= 0) {
		errs = append(errs, fmt.Errorf("redis 限流參數必須大於 0"))
	}

	return errors.Join(errs...)
}

// Addr 監聽位址
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// TickInterval tick 間隔
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Game.TickRate)
}
