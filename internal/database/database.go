package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	DB *gorm.DB
}

// Options tune the connection pool. Zero values keep the defaults.
type Options struct {
	LogLevel        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func New(databaseURL string, opts Options) (*Database, error) {
	var db *gorm.DB
	var err error

	gormConfig := &gorm.Config{
		Logger:  logger.Default.LogMode(gormLogLevel(opts.LogLevel)),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	if strings.HasPrefix(databaseURL, "sqlite://") {
		// SQLite for development and tests
		dbPath := strings.TrimPrefix(databaseURL, "sqlite://")
		db, err = gorm.Open(sqlite.Open(sqliteDSN(dbPath)), gormConfig)
		if err == nil {
			err = limitSQLite(db)
		}
	} else {
		// PostgreSQL for production, opened through lib/pq
		var sqlDB *sql.DB
		sqlDB, err = openPostgres(databaseURL, opts)
		if err == nil {
			db, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return &Database{DB: db}, nil
}

func openPostgres(databaseURL string, opts Options) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return sqlDB, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_busy_timeout=5000"
	}
	return path + "?_busy_timeout=5000"
}

// limitSQLite serializes access; SQLite allows a single writer.
func limitSQLite(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

// Migrate creates the tables and the partial unique indexes that back
// product deduplication.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Site{}, &models.Product{}, &models.SyncEvent{}); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	// Products without a buy URL are keyed by title instead.
	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_site_buy_url
		ON products (site_id, buy_url)
		WHERE buy_url <> ''`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_site_title_no_buy_url
		ON products (site_id, title)
		WHERE buy_url = ''`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	default:
		return logger.Warn
	}
}

// Ping checks that the database answers.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
