package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"wellnessgo/internal/config"
)

const pingTimeout = 5 * time.Second

// Open connects to the SQL database configured for dbType (sqlite3 or mysql) and checks
// that it answers.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	driver, dsn, err := dataSource(dbType, cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		// one connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}
	return db, nil
}

// dataSource resolves the driver name and DSN. A mysql entry without an explicit dsn is
// assembled from its host fields.
func dataSource(dbType string, cfg *config.Config) (string, string, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return "", "", fmt.Errorf("database config for %s not found", dbType)
	}
	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return "", "", fmt.Errorf("sqlite dsn must be provided")
		}
		return "sqlite3", dbCfg.DSN, nil
	case "mysql":
		if dbCfg.DSN != "" {
			return "mysql", dbCfg.DSN, nil
		}
		mc := mysql.NewConfig()
		mc.User = dbCfg.Username
		mc.Passwd = dbCfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(dbCfg.Host, strconv.Itoa(dbCfg.Port))
		mc.DBName = dbCfg.DBName
		mc.ParseTime = true
		if dbCfg.Params != "" {
			params, err := url.ParseQuery(dbCfg.Params)
			if err != nil {
				return "", "", fmt.Errorf("mysql params: %w", err)
			}
			mc.Params = make(map[string]string, len(params))
			for k := range params {
				mc.Params[k] = params.Get(k)
			}
		}
		return "mysql", mc.FormatDSN(), nil
	default:
		return "", "", fmt.Errorf("unsupported driver: %s", dbType)
	}
}

// Migrate ensures the key/value table is present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS kv_store (
				k TEXT PRIMARY KEY,
				v BLOB NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_kv_store_updated_at ON kv_store(updated_at DESC)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS kv_store (
				k VARCHAR(255) NOT NULL,
				v MEDIUMBLOB NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (k),
				INDEX idx_kv_store_updated_at (updated_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
