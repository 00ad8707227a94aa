package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	name:        "MySQL",
	quote:       func(ident string) string { return "`" + ident + "`" },
	placeholder: func(int) string { return "?" },
	createTable: func(table string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id VARCHAR(191) PRIMARY KEY, doc LONGTEXT NOT NULL)`, table)
	},
	fieldExpr: func(path []string) string {
		return fmt.Sprintf(`JSON_UNQUOTE(JSON_EXTRACT(doc, '$.%s'))`, strings.Join(path, "."))
	},
	lockRow: " FOR UPDATE",
	isDuplicate: func(err error) bool {
		var mysqlErr *mysql.MySQLError
		return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
	},
}

// MySQLConfig holds MySQL connection settings.
type MySQLConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// DSN returns the MySQL data source name.
func (c MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	cfg.DBName = c.Name
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// NewMySQLDocumentStore opens a MySQL-backed document store.
func NewMySQLDocumentStore(cfg MySQLConfig) (*SQLDocumentStore, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	log.Printf("[MySQLDocumentStore] Connected to %s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
	return newSQLDocumentStore(db, mysqlDialect), nil
}
