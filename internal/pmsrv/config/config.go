// Package config loads and validates the Workdeck server configuration
// from a TOML file. It exposes DSN builders for the global database,
// the administrative connection used during tenant provisioning, and
// per-tenant databases.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Version is the supported configuration file format version.
const Version = "0.1.0"

// GlobalDBConfig holds the connection settings for the shared global
// database (users, memberships, project records).
type GlobalDBConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	DBName   string `toml:"dbname"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"sslmode"`
	MaxConns int32  `toml:"max_conns"` // global pool upper bound
	MinConns int32  `toml:"min_conns"` // connections kept warm
}

// TenantDBConfig holds the settings shared by all per-tenant database
// pools plus the provisioning inputs.
type TenantDBConfig struct {
	NamePrefix        string `toml:"name_prefix"`         // prepended to the namespace to form the database name
	AdminDBName       string `toml:"admin_dbname"`        // database used for CREATE/DROP DATABASE
	MaxConns          int32  `toml:"max_conns"`           // per-tenant pool upper bound
	MinConns          int32  `toml:"min_conns"`           // per-tenant connections kept warm
	MaxConnIdleTime   string `toml:"max_conn_idle_time"`  // idle connections beyond this are closed
	ConnectTimeout    string `toml:"connect_timeout"`     // per-attempt connect deadline
	SchemaScript      string `toml:"schema_script"`       // path to the tenant schema SQL script
	SeedScript        string `toml:"seed_script"`         // path to the tenant seed SQL script
	SchemaMarkerTable string `toml:"schema_marker_table"` // table whose presence proves the schema loaded
}

// GetMaxConnIdleTime returns the idle timeout as a time.Duration.
func (t *TenantDBConfig) GetMaxConnIdleTime() (time.Duration, error) {
	return ParseDuration(t.MaxConnIdleTime)
}

// GetConnectTimeout returns the connect timeout as a time.Duration.
func (t *TenantDBConfig) GetConnectTimeout() (time.Duration, error) {
	return ParseDuration(t.ConnectTimeout)
}

// GetMaxConnIdleTimeOrDefault returns the idle timeout or panics if the
// configured value is invalid. Validation rejects bad values at load
// time, so a panic here indicates a missed LoadConfig call.
func (t *TenantDBConfig) GetMaxConnIdleTimeOrDefault() time.Duration {
	d, err := t.GetMaxConnIdleTime()
	if err != nil {
		panic(fmt.Sprintf("invalid tenant max_conn_idle_time: %v", err))
	}
	return d
}

// GetConnectTimeoutOrDefault returns the connect timeout or panics if
// the configured value is invalid.
func (t *TenantDBConfig) GetConnectTimeoutOrDefault() time.Duration {
	d, err := t.GetConnectTimeout()
	if err != nil {
		panic(fmt.Sprintf("invalid tenant connect_timeout: %v", err))
	}
	return d
}

// ConfigParam holds all configuration parameters for the Workdeck
// server.
type ConfigParam struct {
	FormatVersion string `toml:"format_version"`

	// Server configuration
	ServerHostName     string `toml:"server_hostname"`
	ServerPort         string `toml:"server_port"`
	HandleCORS         bool   `toml:"handle_cors"`
	MaxRequestBodySize int64  `toml:"max_request_body_size"`

	// Global database configuration
	DB GlobalDBConfig `toml:"db"`

	// Tenant database configuration
	TenantDB TenantDBConfig `toml:"tenantdb"`
}

var cfg *ConfigParam

// Config returns the current configuration.
func Config() *ConfigParam {
	return cfg
}

// GlobalDSN returns the connection string for the global database.
func (c *ConfigParam) GlobalDSN() string {
	return c.dsnFor(c.DB.DBName)
}

// AdminDSN returns the connection string for the administrative
// database used to issue CREATE DATABASE and DROP DATABASE. Tenant
// databases are never used for this, since the target may not exist.
func (c *ConfigParam) AdminDSN() string {
	return c.dsnFor(c.TenantDB.AdminDBName)
}

// TenantDSN returns the connection string for the database backing the
// given tenant namespace.
func (c *ConfigParam) TenantDSN(namespace string) string {
	return c.dsnFor(c.TenantDB.NamePrefix + namespace)
}

// TenantDBName returns the physical database name for a namespace.
func (c *ConfigParam) TenantDBName(namespace string) string {
	return c.TenantDB.NamePrefix + namespace
}

func (c *ConfigParam) dsnFor(dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, dbname, c.DB.SSLMode)
}

// ParseDuration parses a duration string in the format "<number><unit>"
// where unit is one of s (seconds), m (minutes), h (hours), d (days).
func ParseDuration(input string) (time.Duration, error) {
	if len(input) < 2 {
		return 0, fmt.Errorf("invalid duration format: %q", input)
	}

	unit := input[len(input)-1:]
	valueStr := input[:len(input)-1]
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", err)
	}

	var duration time.Duration
	switch unit {
	case "s":
		duration = time.Duration(value) * time.Second
	case "m":
		duration = time.Duration(value) * time.Minute
	case "h":
		duration = time.Duration(value) * time.Hour
	case "d":
		duration = time.Duration(value) * 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown time unit: %s", unit)
	}

	return duration, nil
}

// ValidateConfig checks that all required configuration values are
// present and valid.
func ValidateConfig(cfg *ConfigParam) error {
	if err := validateConfigFormatVersion(cfg); err != nil {
		return err
	}
	if err := validateServerConfig(cfg); err != nil {
		return err
	}
	if err := validateGlobalDBConfig(cfg); err != nil {
		return err
	}
	if err := validateTenantDBConfig(cfg); err != nil {
		return err
	}
	return nil
}

func validateConfigFormatVersion(cfg *ConfigParam) error {
	if cfg.FormatVersion != Version {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}
	return nil
}

func validateServerConfig(cfg *ConfigParam) error {
	if cfg.ServerPort == "" {
		return fmt.Errorf("server_port is required")
	}
	return nil
}

func validateGlobalDBConfig(cfg *ConfigParam) error {
	if cfg.DB.Host == "" {
		return fmt.Errorf("db.host is required")
	}
	if cfg.DB.Port <= 0 {
		return fmt.Errorf("db.port must be positive")
	}
	if cfg.DB.DBName == "" {
		return fmt.Errorf("db.dbname is required")
	}
	if cfg.DB.User == "" {
		return fmt.Errorf("db.user is required")
	}
	if cfg.DB.SSLMode == "" {
		return fmt.Errorf("db.sslmode is required")
	}
	if cfg.DB.MaxConns <= 0 {
		cfg.DB.MaxConns = 20
	}
	if cfg.DB.MinConns <= 0 {
		cfg.DB.MinConns = 2
	}
	return nil
}

func validateTenantDBConfig(cfg *ConfigParam) error {
	if cfg.TenantDB.NamePrefix == "" {
		return fmt.Errorf("tenantdb.name_prefix is required")
	}
	if cfg.TenantDB.AdminDBName == "" {
		return fmt.Errorf("tenantdb.admin_dbname is required")
	}
	if cfg.TenantDB.SchemaScript == "" {
		return fmt.Errorf("tenantdb.schema_script is required")
	}
	if cfg.TenantDB.SeedScript == "" {
		return fmt.Errorf("tenantdb.seed_script is required")
	}
	if cfg.TenantDB.SchemaMarkerTable == "" {
		return fmt.Errorf("tenantdb.schema_marker_table is required")
	}
	if cfg.TenantDB.MaxConns <= 0 {
		cfg.TenantDB.MaxConns = 10
	}
	if cfg.TenantDB.MinConns <= 0 {
		cfg.TenantDB.MinConns = 1
	}
	if cfg.TenantDB.MaxConnIdleTime == "" {
		cfg.TenantDB.MaxConnIdleTime = "5m"
	}
	if _, err := ParseDuration(cfg.TenantDB.MaxConnIdleTime); err != nil {
		return fmt.Errorf("invalid tenantdb.max_conn_idle_time: %v", err)
	}
	if cfg.TenantDB.ConnectTimeout == "" {
		cfg.TenantDB.ConnectTimeout = "3s"
	}
	if _, err := ParseDuration(cfg.TenantDB.ConnectTimeout); err != nil {
		return fmt.Errorf("invalid tenantdb.connect_timeout: %v", err)
	}
	return nil
}

// LoadConfig loads configuration from a file. A .env file beside the
// config file is applied to the environment first if present.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("config filename is required")
	}

	_ = godotenv.Load(filepath.Join(filepath.Dir(filename), ".env"))

	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	cfg = &ConfigParam{}
	if _, err := toml.Decode(string(content), cfg); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	// Script paths are relative to the config file's directory unless
	// absolute.
	base := filepath.Dir(filename)
	if !filepath.IsAbs(cfg.TenantDB.SchemaScript) {
		cfg.TenantDB.SchemaScript = filepath.Join(base, cfg.TenantDB.SchemaScript)
	}
	if !filepath.IsAbs(cfg.TenantDB.SeedScript) {
		cfg.TenantDB.SeedScript = filepath.Join(base, cfg.TenantDB.SeedScript)
	}

	return nil
}

var isTest = false

// IsTest reports whether the process is running under TestInit.
func IsTest() bool {
	return isTest
}

// TestInit loads configuration for tests. It walks up from the working
// directory to the module root (marked by go.mod) and loads the
// workdecksrv.conf found there.
func TestInit() {
	isTest = true
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	projectRoot := wd
	for {
		if _, err := os.Stat(filepath.Join(projectRoot, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(projectRoot)
		if parent == projectRoot {
			panic("could not find project root (go.mod)")
		}
		projectRoot = parent
	}
	if err := LoadConfig(filepath.Join(projectRoot, "workdecksrv.conf")); err != nil {
		panic(fmt.Errorf("error loading config: %v", err))
	}
}
