package config

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/spf13/viper"
)

// Config application configuration structure
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Web     WebConfig     `yaml:"web" mapstructure:"web"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// ServerConfig HTTP server configuration
type ServerConfig struct {
	Port            int    `yaml:"port" mapstructure:"port"`
	// MaxBodyBytes limits the size of accepted event payloads (0 = unlimited)
	MaxBodyBytes    int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	// CORSAllowOrigin is sent to browser extensions posting events cross-origin
	CORSAllowOrigin string `yaml:"cors_allow_origin" mapstructure:"cors_allow_origin"`
}

// LogConfig log configuration
type LogConfig struct {
	Level       string        `yaml:"level" mapstructure:"level"`
	FileLogging FileLogConfig `yaml:"file_logging" mapstructure:"file_logging"`
}

// FileLogConfig file log configuration
type FileLogConfig struct {
	Enable     bool   `yaml:"enable" mapstructure:"enable"`
	Path       string `yaml:"path" mapstructure:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// SessionConfig controls how incoming request events are handled
type SessionConfig struct {
	PreserveLog       bool     `yaml:"preserve_log" mapstructure:"preserve_log"`
	IgnoreMethods     []string `yaml:"ignore_methods" mapstructure:"ignore_methods"`
	IgnoreURLContains []string `yaml:"ignore_url_contains" mapstructure:"ignore_url_contains"`
	PathMaxLength     int      `yaml:"path_max_length" mapstructure:"path_max_length"`
	TraceURLTemplate  string   `yaml:"trace_url_template" mapstructure:"trace_url_template"`
	Filters           []string `yaml:"filters" mapstructure:"filters"`
}

// StorageConfig in-session row storage. Rows never outlive the process.
type StorageConfig struct {
	Driver  string `yaml:"driver" mapstructure:"driver"`
	Path    string `yaml:"path" mapstructure:"path"`
	MaxRows int    `yaml:"max_rows" mapstructure:"max_rows"`
}

// OutputConfig controls CLI output style
type OutputConfig struct {
	Mode    string `yaml:"mode" mapstructure:"mode"`
	Silence bool   `yaml:"silence" mapstructure:"silence"`
	Locale  string `yaml:"locale" mapstructure:"locale"`
}

// WebConfig HTTP API configuration
type WebConfig struct {
	Enable    bool            `yaml:"enable" mapstructure:"enable"`
	AdminPath string          `yaml:"admin_path" mapstructure:"admin_path"`
	Export    WebExportConfig `yaml:"export" mapstructure:"export"`
}

// WebExportConfig export configuration
type WebExportConfig struct {
	Enable  bool     `yaml:"enable" mapstructure:"enable"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// MetricsConfig prometheus endpoint configuration
type MetricsConfig struct {
	Enable bool   `yaml:"enable" mapstructure:"enable"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// LoadConfig load configuration
// If v is nil, a new viper instance will be created
func LoadConfig(configPath string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)

	v.SetEnvPrefix("GQLTAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gqltap")
		v.AddConfigPath("/etc/gqltap")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		log.Printf("Config file loaded: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Unmarshal doesn't apply defaults to zero-value fields
	applyDefaults(&config, v)

	return &config, nil
}

// applyDefaults apply default values to zero-value fields in the struct.
// Command line flags are handled separately in main.go to ensure highest priority.
func applyDefaults(cfg *Config, v *viper.Viper) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = v.GetInt("server.port")
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = v.GetInt64("server.max_body_bytes")
	}
	if cfg.Server.CORSAllowOrigin == "" {
		cfg.Server.CORSAllowOrigin = v.GetString("server.cors_allow_origin")
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = v.GetString("log.level")
	}
	// Bool fields always come from viper, which resolves file values over defaults.
	cfg.Log.FileLogging.Enable = v.GetBool("log.file_logging.enable")
	cfg.Log.FileLogging.Compress = v.GetBool("log.file_logging.compress")
	if cfg.Log.FileLogging.Path == "" {
		cfg.Log.FileLogging.Path = v.GetString("log.file_logging.path")
	}
	if cfg.Log.FileLogging.MaxSizeMB == 0 {
		cfg.Log.FileLogging.MaxSizeMB = v.GetInt("log.file_logging.max_size_mb")
	}
	if cfg.Log.FileLogging.MaxBackups == 0 {
		cfg.Log.FileLogging.MaxBackups = v.GetInt("log.file_logging.max_backups")
	}
	if cfg.Log.FileLogging.MaxAgeDays == 0 {
		cfg.Log.FileLogging.MaxAgeDays = v.GetInt("log.file_logging.max_age_days")
	}

	cfg.Session.PreserveLog = v.GetBool("session.preserve_log")
	if len(cfg.Session.IgnoreMethods) == 0 {
		cfg.Session.IgnoreMethods = v.GetStringSlice("session.ignore_methods")
	}
	if len(cfg.Session.IgnoreURLContains) == 0 {
		cfg.Session.IgnoreURLContains = v.GetStringSlice("session.ignore_url_contains")
	}
	if cfg.Session.PathMaxLength == 0 {
		cfg.Session.PathMaxLength = v.GetInt("session.path_max_length")
	}
	if cfg.Session.TraceURLTemplate == "" {
		cfg.Session.TraceURLTemplate = v.GetString("session.trace_url_template")
	}
	if len(cfg.Session.Filters) == 0 {
		cfg.Session.Filters = v.GetStringSlice("session.filters")
	}
	cfg.Session.IgnoreMethods = normalizeMethodList(cfg.Session.IgnoreMethods)

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = v.GetString("storage.driver")
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = v.GetString("storage.path")
	}
	if cfg.Storage.MaxRows == 0 {
		cfg.Storage.MaxRows = v.GetInt("storage.max_rows")
	}

	if cfg.Output.Mode == "" {
		cfg.Output.Mode = v.GetString("output.mode")
	}
	cfg.Output.Silence = v.GetBool("output.silence")
	if cfg.Output.Locale == "" {
		cfg.Output.Locale = v.GetString("output.locale")
	}

	cfg.Web.Enable = v.GetBool("web.enable")
	if cfg.Web.AdminPath == "" {
		cfg.Web.AdminPath = v.GetString("web.admin_path")
	}
	cfg.Web.Export.Enable = v.GetBool("web.export.enable")
	if len(cfg.Web.Export.Formats) == 0 {
		cfg.Web.Export.Formats = v.GetStringSlice("web.export.formats")
	}

	cfg.Metrics.Enable = v.GetBool("metrics.enable")
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = v.GetString("metrics.path")
	}
}

// setDefaults set default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 38889)
	v.SetDefault("server.max_body_bytes", int64(10*1024*1024))
	v.SetDefault("server.cors_allow_origin", "*")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_logging.enable", false)
	v.SetDefault("log.file_logging.path", "./gqltap.log")
	v.SetDefault("log.file_logging.max_size_mb", 10)
	v.SetDefault("log.file_logging.max_backups", 5)
	v.SetDefault("log.file_logging.max_age_days", 30)
	v.SetDefault("log.file_logging.compress", true)

	v.SetDefault("session.preserve_log", false)
	v.SetDefault("session.ignore_methods", []string{http.MethodOptions})
	v.SetDefault("session.ignore_url_contains", []string{})
	v.SetDefault("session.path_max_length", 100)
	v.SetDefault("session.trace_url_template", "https://app.datadoghq.eu/apm/trace/{traceId}")
	v.SetDefault("session.filters", []string{"all"})

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.path", "./data/gqltap-session.db")
	v.SetDefault("storage.max_rows", 5000)

	v.SetDefault("output.mode", "console")
	v.SetDefault("output.silence", false)
	v.SetDefault("output.locale", "en")

	v.SetDefault("web.enable", true)
	v.SetDefault("web.admin_path", "/api")
	v.SetDefault("web.export.enable", true)
	v.SetDefault("web.export.formats", []string{"json", "csv", "txt"})

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate checks the configuration and fills normalized values
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("server max body bytes cannot be negative")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.FileLogging.Enable {
		if c.Log.FileLogging.Path == "" {
			return fmt.Errorf("log file path cannot be empty when file logging is enabled")
		}
		if c.Log.FileLogging.MaxSizeMB < 1 {
			return fmt.Errorf("log file max size must be at least 1MB")
		}
		if c.Log.FileLogging.MaxBackups < 0 {
			return fmt.Errorf("log file max backups cannot be negative")
		}
		if c.Log.FileLogging.MaxAgeDays < 0 {
			return fmt.Errorf("log file max age cannot be negative")
		}
	}

	if c.Session.PathMaxLength < 0 {
		return fmt.Errorf("session path_max_length cannot be negative")
	}
	if c.Session.PathMaxLength == 0 {
		c.Session.PathMaxLength = 100
	}
	if t := strings.TrimSpace(c.Session.TraceURLTemplate); t != "" && !strings.Contains(t, "{traceId}") {
		return fmt.Errorf("session trace_url_template must contain {traceId}")
	}
	for i, s := range c.Session.IgnoreURLContains {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("session ignore_url_contains[%d] cannot be empty", i)
		}
	}
	validFilters := map[string]struct{}{"all": {}, "graphql": {}, "token": {}, "access": {}, "other": {}}
	for i, f := range c.Session.Filters {
		if _, ok := validFilters[strings.ToLower(strings.TrimSpace(f))]; !ok {
			return fmt.Errorf("session filters[%d] must be one of all, graphql, token, access, other", i)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory":
		c.Storage.Driver = "memory"
	case "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage path cannot be empty for sqlite driver")
		}
	default:
		return fmt.Errorf("storage driver must be memory or sqlite")
	}
	if c.Storage.MaxRows < 0 {
		return fmt.Errorf("storage max_rows cannot be negative")
	}

	switch strings.ToLower(c.Output.Mode) {
	case "", "console", "json":
		if c.Output.Mode == "" {
			c.Output.Mode = "console"
		}
	default:
		return fmt.Errorf("output mode must be 'console' or 'json'")
	}
	if strings.TrimSpace(c.Output.Locale) == "" {
		c.Output.Locale = "en"
	}

	if c.Web.Enable {
		if c.Web.AdminPath == "" {
			return fmt.Errorf("web admin path cannot be empty")
		}
		if !strings.HasPrefix(c.Web.AdminPath, "/") {
			return fmt.Errorf("web admin path must start with '/'")
		}
		if c.Web.Export.Enable && len(c.Web.Export.Formats) == 0 {
			return fmt.Errorf("web export formats cannot be empty when export enabled")
		}
	}

	if c.Metrics.Enable {
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics path must start with '/'")
		}
		if c.Web.Enable && normalizePath(c.Metrics.Path) == normalizePath(c.Web.AdminPath) {
			return fmt.Errorf("metrics.path (%s) conflicts with web.admin_path (%s)", c.Metrics.Path, c.Web.AdminPath)
		}
	}

	return nil
}

func normalizeMethodList(list []string) []string {
	if len(list) == 0 {
		return list
	}
	set := make(map[string]struct{}, len(list))
	result := make([]string, 0, len(list))
	for _, m := range list {
		norm := strings.ToUpper(strings.TrimSpace(m))
		if norm == "" {
			continue
		}
		if _, exists := set[norm]; exists {
			continue
		}
		set[norm] = struct{}{}
		result = append(result, norm)
	}
	return result
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
