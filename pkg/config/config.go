/*
Package config manages the TOML config of fcgiclient.
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bastiangx/fcgiclient/internal/logger"
	"github.com/bastiangx/fcgiclient/internal/utils"
	"github.com/bastiangx/fcgiclient/pkg/cgi"
	"github.com/bastiangx/fcgiclient/pkg/fcgi"
	"github.com/charmbracelet/log"
)

// Config holds the entire config structure
type Config struct {
	Client ClientConfig `toml:"client"`
	Params ParamsConfig `toml:"params"`
	Log    LogConfig    `toml:"log"`
}

// ClientConfig says where the application listens and how to talk to it.
type ClientConfig struct {
	Network          string `toml:"network"`
	Address          string `toml:"address"`
	KeepConn         bool   `toml:"keep_conn"`
	Multiplex        bool   `toml:"multiplex"`
	DialTimeoutMs    int    `toml:"dial_timeout_ms"`
	WriteTimeoutMs   int    `toml:"write_timeout_ms"`
	RequestTimeoutMs int    `toml:"request_timeout_ms"`
}

// ParamsConfig holds params sent with every request.
type ParamsConfig struct {
	DocumentRoot   string            `toml:"document_root"`
	ServerName     string            `toml:"server_name"`
	ServerSoftware string            `toml:"server_software"`
	ServerAddr     string            `toml:"server_addr"`
	ServerPort     int               `toml:"server_port"`
	Extra          map[string]string `toml:"extra"`

	// ExtraOrder is the order of the extra names in the file.
	ExtraOrder []string `toml:"-"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Level      string `toml:"level"`
	Timestamps bool   `toml:"timestamps"`
	Caller     bool   `toml:"caller"`
	JSON       bool   `toml:"json"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			Network:          "tcp",
			Address:          "127.0.0.1:9000",
			KeepConn:         false,
			Multiplex:        false,
			DialTimeoutMs:    3000,
			WriteTimeoutMs:   10000,
			RequestTimeoutMs: 30000,
		},
		Params: ParamsConfig{
			DocumentRoot:   "/var/www/html",
			ServerName:     "localhost",
			ServerSoftware: "fcgiclient",
			ServerAddr:     "127.0.0.1",
			ServerPort:     80,
		},
		Log: LogConfig{
			Level:      "info",
			Timestamps: true,
		},
	}
}

// Validate rejects values no connection could be built from.
func (c *Config) Validate() error {
	switch c.Client.Network {
	case "tcp", "tcp4", "tcp6", "unix":
	default:
		return fmt.Errorf("client.network: unsupported network %q", c.Client.Network)
	}
	if c.Client.Address == "" {
		return fmt.Errorf("client.address is empty")
	}
	if c.Client.Multiplex && !c.Client.KeepConn {
		return fmt.Errorf("client.multiplex needs client.keep_conn")
	}
	for name, v := range map[string]int{
		"dial_timeout_ms":    c.Client.DialTimeoutMs,
		"write_timeout_ms":   c.Client.WriteTimeoutMs,
		"request_timeout_ms": c.Client.RequestTimeoutMs,
	} {
		if v < 0 {
			return fmt.Errorf("client.%s must not be negative", name)
		}
	}
	if p := c.Params.ServerPort; p < 0 || p > 65535 {
		return fmt.Errorf("params.server_port %d out of range", p)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (c ClientConfig) DialTimeout() time.Duration    { return ms(c.DialTimeoutMs) }
func (c ClientConfig) WriteTimeout() time.Duration   { return ms(c.WriteTimeoutMs) }
func (c ClientConfig) RequestTimeout() time.Duration { return ms(c.RequestTimeoutMs) }

// Options turns the client table into connection options.
func (c ClientConfig) Options() []fcgi.Option {
	return []fcgi.Option{
		fcgi.WithKeepConn(c.KeepConn),
		fcgi.WithMultiplex(c.Multiplex),
		fcgi.WithWriteTimeout(c.WriteTimeout()),
	}
}

// Apply writes the configured params into b. Empty values are skipped.
func (p ParamsConfig) Apply(b *cgi.Builder) *cgi.Builder {
	set := func(name, value string) {
		if value != "" {
			b.Set(name, value)
		}
	}
	set(cgi.DocumentRoot, p.DocumentRoot)
	set(cgi.ServerName, p.ServerName)
	set(cgi.ServerSoftware, p.ServerSoftware)
	set(cgi.ServerAddr, p.ServerAddr)
	if p.ServerPort > 0 {
		b.ServerPort(p.ServerPort)
	}
	for _, name := range p.extraNames() {
		b.Set(name, p.Extra[name])
	}
	return b
}

// extraNames lists the extra params in file order. Names missing from
// ExtraOrder follow in sorted order.
func (p ParamsConfig) extraNames() []string {
	names := make([]string, 0, len(p.Extra))
	seen := make(map[string]bool, len(p.Extra))
	for _, name := range p.ExtraOrder {
		if _, ok := p.Extra[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range p.Extra {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

// Settings converts the log table for internal/logger.
func (l LogConfig) Settings() logger.Settings {
	return logger.Settings{Level: l.Level, Timestamps: l.Timestamps, Caller: l.Caller, JSON: l.JSON}
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/fcgiclient
// 2. the directory of the executable
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err == nil {
		dir := filepath.Join(home, ".config", "fcgiclient")
		if status := utils.CheckDir(dir); status.Writable {
			return dir, nil
		}
	} else {
		log.Errorf("Failed to get home directory: %v", err)
	}
	dir, err := utils.ExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return dir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: ~/.config/fcgiclient/config.toml, created when missing
// 3. Builtin defaults
func LoadConfigWithPriority(customPath string) (*Config, string, error) {
	if customPath != "" {
		if _, err := os.Stat(customPath); err != nil {
			log.Warnf("Config file %s not found: %v. Trying default path...", customPath, err)
		} else if cfg, err := LoadConfig(customPath); err != nil {
			log.Warnf("Failed to load config from %s: %v. Trying default path...", customPath, err)
		} else {
			log.Debugf("Loaded config from custom path: %s", customPath)
			return cfg, customPath, nil
		}
	}

	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}
	cfg, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at %s: %v. Using built-in defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return cfg, defaultPath, nil
}

// InitConfig loads config from path, writing the defaults there first if
// the file does not exist.
func InitConfig(path string) (*Config, error) {
	if !utils.FileExists(path) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", path, err)
			return cfg, nil
		}
		log.Debugf("Created default config file at: %s", path)
		return cfg, nil
	}
	return LoadConfig(path)
}

// LoadConfig reads path over the defaults. A file that does not decode is
// recovered key by key. The result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	meta, err := utils.LoadTOMLFile(path, cfg)
	if err != nil {
		cfg = tryPartialParse(path)
	} else {
		cfg.Params.ExtraOrder = utils.TableKeys(meta, "params", "extra")
		for _, key := range utils.UndecodedKeys(meta) {
			log.Warnf("Unknown config key %s in %s", key, path)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// tryPartialParse keeps every key of path that has the right type.
func tryPartialParse(path string) *Config {
	cfg := DefaultConfig()

	raw, err := utils.ParseTOMLLoose(path)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", path, err)
		return cfg
	}
	if table, ok := utils.Section(raw, "client"); ok {
		extractClientConfig(table, &cfg.Client)
	}
	if table, ok := utils.Section(raw, "params"); ok {
		extractParamsConfig(table, &cfg.Params)
	}
	if table, ok := utils.Section(raw, "log"); ok {
		extractLogConfig(table, &cfg.Log)
	}
	return cfg
}

func extractClientConfig(data map[string]any, client *ClientConfig) {
	if v, ok := utils.String(data, "network"); ok {
		client.Network = v
	}
	if v, ok := utils.String(data, "address"); ok {
		client.Address = v
	}
	if v, ok := utils.Bool(data, "keep_conn"); ok {
		client.KeepConn = v
	}
	if v, ok := utils.Bool(data, "multiplex"); ok {
		client.Multiplex = v
	}
	if v, ok := utils.Int(data, "dial_timeout_ms"); ok {
		client.DialTimeoutMs = v
	}
	if v, ok := utils.Int(data, "write_timeout_ms"); ok {
		client.WriteTimeoutMs = v
	}
	if v, ok := utils.Int(data, "request_timeout_ms"); ok {
		client.RequestTimeoutMs = v
	}
}

func extractParamsConfig(data map[string]any, params *ParamsConfig) {
	if v, ok := utils.String(data, "document_root"); ok {
		params.DocumentRoot = v
	}
	if v, ok := utils.String(data, "server_name"); ok {
		params.ServerName = v
	}
	if v, ok := utils.String(data, "server_software"); ok {
		params.ServerSoftware = v
	}
	if v, ok := utils.String(data, "server_addr"); ok {
		params.ServerAddr = v
	}
	if v, ok := utils.Int(data, "server_port"); ok {
		params.ServerPort = v
	}
	if v, ok := utils.StringMap(data, "extra"); ok {
		params.Extra = v
	}
}

func extractLogConfig(data map[string]any, l *LogConfig) {
	if v, ok := utils.String(data, "level"); ok {
		l.Level = v
	}
	if v, ok := utils.Bool(data, "timestamps"); ok {
		l.Timestamps = v
	}
	if v, ok := utils.Bool(data, "caller"); ok {
		l.Caller = v
	}
	if v, ok := utils.Bool(data, "json"); ok {
		l.JSON = v
	}
}

// RebuildConfigFile overwrites the default config.toml with the defaults.
func RebuildConfigFile() (string, error) {
	path, err := GetDefaultConfigPath()
	if err != nil {
		return "", err
	}
	return path, SaveConfig(DefaultConfig(), path)
}

// GetActiveConfigPath returns the absolute path of the loaded config file
func GetActiveConfigPath(path string) string {
	if path == "" {
		if defaultPath, err := GetDefaultConfigPath(); err == nil {
			return defaultPath
		}
		return "unknown"
	}
	return utils.AbsPath(path)
}

// SaveConfig saves into a TOML file
func SaveConfig(cfg *Config, path string) error {
	return utils.SaveTOMLFile(cfg, path)
}
