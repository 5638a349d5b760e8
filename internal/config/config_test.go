package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  name: test\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}
	if cfg.Oracle.MinRequestInterval != 5*time.Second {
		t.Fatalf("min_request_interval=%s", cfg.Oracle.MinRequestInterval)
	}
	if cfg.Poller.RefreshInterval != 15*time.Second {
		t.Fatalf("refresh_interval=%s", cfg.Poller.RefreshInterval)
	}
	if cfg.Poller.HistorySize != 30 || cfg.Poller.MaxRetries != 3 || cfg.Poller.AlignToInterval || cfg.Poller.StartupDelay != 0 {
		t.Fatalf("poller defaults: %+v", cfg.Poller)
	}
	if cfg.Oracle.BaseURL != "https://api.etherscan.io/api" {
		t.Fatalf("base_url=%s", cfg.Oracle.BaseURL)
	}
	if cfg.HasAPIKey() {
		t.Fatal("默认不应有 API key")
	}
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gasflow.yaml")
	body := `
oracle:
  api_key: abc123
  min_request_interval: 2s
poller:
  refresh_interval: 1m
  history_size: 10
  align_to_interval: true
  startup_delay: 3s
store:
  backend: sqlite
  path: ` + filepath.Join(dir, "state.db") + `
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if !cfg.HasAPIKey() {
		t.Fatal("应识别 API key")
	}
	if cfg.Oracle.MinRequestInterval != 2*time.Second || cfg.Poller.RefreshInterval != time.Minute {
		t.Fatalf("duration 覆盖失败: %+v %+v", cfg.Oracle, cfg.Poller)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Poller.HistorySize != 10 {
		t.Fatalf("覆盖失败: %+v", cfg)
	}
	if !cfg.Poller.AlignToInterval || cfg.Poller.StartupDelay != 3*time.Second {
		t.Fatalf("调度参数覆盖失败: %+v", cfg.Poller)
	}
}

func TestHasAPIKeyPlaceholder(t *testing.T) {
	cfg := &Config{Oracle: OracleConfig{APIKey: PlaceholderAPIKey}}
	if cfg.HasAPIKey() {
		t.Fatal("占位 key 不应视为可用")
	}
	cfg.Oracle.APIKey = "  "
	if cfg.HasAPIKey() {
		t.Fatal("空白 key 不应视为可用")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Poller: PollerConfig{RefreshInterval: time.Second, HistorySize: 30, MaxRetries: 3},
			Store:  StoreConfig{Backend: "memory"},
			Export: ExportConfig{MaxDataPoints: 10},
		}
	}

	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}

	cases := map[string]func(*Config){
		"refresh":  func(c *Config) { c.Poller.RefreshInterval = 0 },
		"history":  func(c *Config) { c.Poller.HistorySize = 0 },
		"retries":  func(c *Config) { c.Poller.MaxRetries = 0 },
		"backend":  func(c *Config) { c.Store.Backend = "etcd" },
		"path":     func(c *Config) { c.Store.Backend = "file" },
		"telegram": func(c *Config) { c.Alerting.Telegram.Enabled = true },
	}
	for name, mutate := range cases {
		cfg := valid()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
