package matches

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator 管理對戰紀錄表的遷移
type Migrator struct {
	migrate *migrate.Migrate
	logger  *slog.Logger
}

// NewMigrator 以嵌入的 SQL 檔建立遷移管理器
func NewMigrator(databaseURL string, logger *slog.Logger) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("建立遷移源失敗: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("建立遷移實例失敗: %w", err)
	}

	return &Migrator{
		migrate: m,
		logger:  logger,
	}, nil
}

// Up 執行所有待處理的遷移，髒狀態會先強制回到記錄的版本
func (m *Migrator) Up() error {
	version, dirty, err := m.migrate.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("獲取當前版本失敗: %w", err)
	}

	if dirty {
		m.logger.Warn("資料庫處於髒狀態，嘗試修復", "version", version)
		if err := m.migrate.Force(int(version)); err != nil { // #nosec G115 - 遷移版本號很小
			return fmt.Errorf("修復髒狀態失敗: %w", err)
		}
	}

	if err := m.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Debug("資料庫已是最新版本")
			return nil
		}
		return fmt.Errorf("執行遷移失敗: %w", err)
	}

	newVersion, _, _ := m.migrate.Version()
	m.logger.Info("資料庫遷移成功", "version", newVersion)
	return nil
}

// Down 回滾所有遷移
func (m *Migrator) Down() error {
	if err := m.migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("回滾失敗: %w", err)
	}
	return nil
}

// Close 關閉遷移管理器
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("關閉源失敗: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("關閉資料庫連線失敗: %w", dbErr)
	}
	return nil
}

// Migrate 執行遷移後關閉
func Migrate(databaseURL string, logger *slog.Logger) error {
	m, err := NewMigrator(databaseURL, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("關閉遷移管理器失敗", "error", err)
		}
	}()

	return m.Up()
}
