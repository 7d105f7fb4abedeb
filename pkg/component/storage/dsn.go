package storage

import (
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"

	options "github.com/kart-io/okr-assistant/pkg/options/storage"
)

// PostgresDSN builds a key=value DSN. Values containing spaces or quotes are
// single-quoted with embedded quotes and backslashes escaped.
func PostgresDSN(opts *options.Options) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		opts.Host,
		opts.Port,
		escapePostgresValue(opts.Username),
		escapePostgresValue(opts.Password),
		escapePostgresValue(opts.Database),
		opts.SSLMode,
	)
}

func escapePostgresValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// MySQLDSN builds a go-sql-driver DSN.
func MySQLDSN(opts *options.Options) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = opts.Username
	cfg.Passwd = opts.Password
	cfg.Net = "tcp"
	cfg.Addr = fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// SQLiteDSN enables foreign keys so key results and documents cascade with
// their objective.
func SQLiteDSN(path string) string {
	if strings.Contains(path, "foreign_keys") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)"
}
