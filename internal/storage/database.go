package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"companion/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database configured for dbType (sqlite3 or mysql).
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if dbCfg.DSN == ":memory:" {
			// every pooled connection would otherwise get its own empty database
			db.SetMaxOpenConns(1)
		}
	case "mysql":
		db, err = sql.Open("mysql", mysqlDSN(dbCfg))
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func mysqlDSN(dbCfg config.DatabaseConfig) string {
	if dbCfg.DSN != "" {
		return dbCfg.DSN
	}
	params := dbCfg.Params
	if !strings.Contains(params, "parseTime=") {
		if params != "" {
			params += "&"
		}
		params += "parseTime=true"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		dbCfg.Username,
		dbCfg.Password,
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.DBName,
		params,
	)
}

// Migrate ensures the conversations table is present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS conversations (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at DATETIME NOT NULL,
				user_id TEXT,
				role TEXT NOT NULL CHECK (role IN ('user', 'model')),
				content TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_user_created ON conversations(user_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS conversations (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				created_at DATETIME(6) NOT NULL,
				user_id VARCHAR(255) NULL,
				role VARCHAR(16) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_conversations_user_created (user_id, created_at),
				INDEX idx_conversations_created (created_at)
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
