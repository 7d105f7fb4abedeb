// Package storage provides relational database options for the gorm stores.
package storage

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/okr-assistant/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Options selects a driver and carries the connection settings for it.
type Options struct {
	Driver string `json:"driver" mapstructure:"driver"`

	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"-" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	// SSLMode is only used by postgres.
	SSLMode string `json:"ssl-mode" mapstructure:"ssl-mode"`
	// Path is the sqlite file; ":memory:" keeps everything in process.
	Path string `json:"path" mapstructure:"path"`

	MaxIdleConnections    int           `json:"max-idle-connections" mapstructure:"max-idle-connections"`
	MaxOpenConnections    int           `json:"max-open-connections" mapstructure:"max-open-connections"`
	MaxConnectionLifeTime time.Duration `json:"max-connection-life-time" mapstructure:"max-connection-life-time"`
	// LogLevel: 1 silent, 2 error, 3 warn, 4 info.
	LogLevel    int  `json:"log-level" mapstructure:"log-level"`
	AutoMigrate bool `json:"auto-migrate" mapstructure:"auto-migrate"`
}

// NewOptions creates a new Options object with default values.
func NewOptions() *Options {
	return &Options{
		Driver:                DriverPostgres,
		Host:                  "127.0.0.1",
		Port:                  5432,
		Username:              "postgres",
		Database:              "okr",
		SSLMode:               "disable",
		Path:                  "okr.db",
		MaxIdleConnections:    10,
		MaxOpenConnections:    100,
		MaxConnectionLifeTime: 10 * time.Second,
		LogLevel:              1,
		AutoMigrate:           true,
	}
}

// AddFlags adds flags for storage options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...)
	fs.StringVar(&o.Driver, p+"storage.driver", o.Driver, "Database driver (postgres|mysql|sqlite).")
	fs.StringVar(&o.Host, p+"storage.host", o.Host, "Database host.")
	fs.IntVar(&o.Port, p+"storage.port", o.Port, "Database port.")
	fs.StringVar(&o.Username, p+"storage.username", o.Username, "Database username.")
	fs.StringVar(&o.Password, p+"storage.password", o.Password, "Database password (prefer the STORAGE_PASSWORD env var).")
	fs.StringVar(&o.Database, p+"storage.database", o.Database, "Database name.")
	fs.StringVar(&o.SSLMode, p+"storage.ssl-mode", o.SSLMode, "PostgreSQL SSL mode.")
	fs.StringVar(&o.Path, p+"storage.path", o.Path, "SQLite database file.")
	fs.IntVar(&o.MaxIdleConnections, p+"storage.max-idle-connections", o.MaxIdleConnections, "Maximum idle connections.")
	fs.IntVar(&o.MaxOpenConnections, p+"storage.max-open-connections", o.MaxOpenConnections, "Maximum open connections.")
	fs.DurationVar(&o.MaxConnectionLifeTime, p+"storage.max-connection-life-time", o.MaxConnectionLifeTime, "Maximum connection life time.")
	fs.IntVar(&o.LogLevel, p+"storage.log-level", o.LogLevel, "Gorm log level (1 silent, 2 error, 3 warn, 4 info).")
	fs.BoolVar(&o.AutoMigrate, p+"storage.auto-migrate", o.AutoMigrate, "Create or update tables on startup.")
}

// Complete fills the password from the environment when it was not set.
func (o *Options) Complete() error {
	if o.Password == "" {
		o.Password = os.Getenv("STORAGE_PASSWORD")
	}
	return nil
}

// Validate validates the storage options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Driver {
	case DriverPostgres, DriverMySQL:
		if o.Host == "" {
			errs = append(errs, fmt.Errorf("storage.host is required for %s", o.Driver))
		}
		if o.Database == "" {
			errs = append(errs, fmt.Errorf("storage.database is required for %s", o.Driver))
		}
	case DriverSQLite:
		if o.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage.driver %q", o.Driver))
	}
	if o.LogLevel < 1 || o.LogLevel > 4 {
		errs = append(errs, fmt.Errorf("storage.log-level must be between 1 and 4"))
	}
	return errs
}
