package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bastiangx/fcgiclient/pkg/cgi"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
	if cfg.Client.KeepConn || cfg.Client.Multiplex {
		t.Error("connections must default to single-shot and sequential")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := DefaultConfig()
	cfg.Client.Network = "unix"
	cfg.Client.Address = "/run/php/php-fpm.sock"
	cfg.Client.KeepConn = true
	cfg.Params.Extra = map[string]string{"APP_ENV": "test"}
	cfg.Log.Level = "debug"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Client != cfg.Client || loaded.Log != cfg.Log {
		t.Errorf("got %+v, want %+v", loaded, cfg)
	}
	if loaded.Params.Extra["APP_ENV"] != "test" || loaded.Params.ServerPort != 80 {
		t.Errorf("params = %+v", loaded.Params)
	}
}

func TestLoadConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeFile(t, "[client]\naddress = \"10.0.0.5:9000\"\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Client.Address != "10.0.0.5:9000" || cfg.Client.Network != "tcp" || cfg.Client.DialTimeoutMs != 3000 {
		t.Errorf("client = %+v", cfg.Client)
	}
}

func TestLoadConfigPartialRecovery(t *testing.T) {
	path := writeFile(t, `
[client]
address = "127.0.0.1:9001"
keep_conn = true
dial_timeout_ms = "soon"

[log]
level = "warn"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Client.Address != "127.0.0.1:9001" || !cfg.Client.KeepConn {
		t.Errorf("valid keys lost: %+v", cfg.Client)
	}
	if cfg.Client.DialTimeoutMs != 3000 {
		t.Errorf("bad key not replaced by its default: %d", cfg.Client.DialTimeoutMs)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadConfigUnparsableUsesDefaults(t *testing.T) {
	path := writeFile(t, "this is [not toml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Client != DefaultConfig().Client {
		t.Errorf("client = %+v", cfg.Client)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad network", func(c *Config) { c.Client.Network = "udp" }},
		{"empty address", func(c *Config) { c.Client.Address = "" }},
		{"multiplex without keep-alive", func(c *Config) { c.Client.Multiplex = true }},
		{"negative timeout", func(c *Config) { c.Client.WriteTimeoutMs = -1 }},
		{"port out of range", func(c *Config) { c.Params.ServerPort = 70000 }},
	}

	for _, tc := range testCases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}

	path := writeFile(t, "[client]\nnetwork = \"udp\"\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig accepted an invalid file")
	}
}

func TestInitConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fcgiclient", "config.toml")
	cfg, err := InitConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if cfg.Client != DefaultConfig().Client {
		t.Errorf("client = %+v", cfg.Client)
	}
}

func TestLoadConfigWithPriorityCustomPath(t *testing.T) {
	path := writeFile(t, "[client]\naddress = \"custom:9000\"\n")
	cfg, used, err := LoadConfigWithPriority(path)
	if err != nil {
		t.Fatal(err)
	}
	if used != path || cfg.Client.Address != "custom:9000" {
		t.Errorf("loaded %q from %s", cfg.Client.Address, used)
	}
}

func TestParamsApply(t *testing.T) {
	p := ParamsConfig{
		DocumentRoot: "/srv",
		ServerPort:   8080,
		Extra:        map[string]string{"APP_ENV": "ci"},
	}
	params := p.Apply(cgi.NewBuilder()).Params()

	for name, want := range map[string]string{"DOCUMENT_ROOT": "/srv", "SERVER_PORT": "8080", "APP_ENV": "ci"} {
		if got, _ := params.Get(name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if _, ok := params.Get("SERVER_NAME"); ok {
		t.Error("empty value was set")
	}
}

func TestParamsApplyKeepsExtraFileOrder(t *testing.T) {
	path := writeFile(t, "[params.extra]\nZETA = \"1\"\nALPHA = \"2\"\nMID = \"3\"\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		var names []string
		cfg.Params.Apply(cgi.NewBuilder()).Params().Each(func(name, _ string) bool {
			switch name {
			case "ZETA", "ALPHA", "MID":
				names = append(names, name)
			}
			return true
		})
		if got := strings.Join(names, ","); got != "ZETA,ALPHA,MID" {
			t.Fatalf("extra params sent as %s", got)
		}
	}

	// without a recorded order the names are sorted
	p := ParamsConfig{Extra: map[string]string{"B": "2", "C": "3", "A": "1"}}
	got := p.Apply(cgi.NewBuilder()).Params().Pairs()
	if len(got) != 3 || string(got[0].Name) != "A" || string(got[2].Name) != "C" {
		t.Errorf("unexpected order %v", got)
	}
}
