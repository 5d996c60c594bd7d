package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CHATVAULT_HOME", tmpDir)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HomeDir != tmpDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, tmpDir)
	}
	if cfg.Data.DataDir != tmpDir {
		t.Errorf("Data.DataDir = %q, want %q", cfg.Data.DataDir, tmpDir)
	}
	if !strings.HasSuffix(cfg.Data.ChatDBPath, filepath.Join("Library", "Messages", "chat.db")) {
		t.Errorf("Data.ChatDBPath = %q, want default Messages path", cfg.Data.ChatDBPath)
	}
	if cfg.Identity.DefaultRegion != "US" {
		t.Errorf("Identity.DefaultRegion = %q, want US", cfg.Identity.DefaultRegion)
	}
	if !cfg.Contacts.Enabled {
		t.Error("Contacts.Enabled = false, want true")
	}
	if cfg.Search.DefaultLimit != 50 {
		t.Errorf("Search.DefaultLimit = %d, want 50", cfg.Search.DefaultLimit)
	}
	if cfg.Embed.Model != "nomic-embed-text" {
		t.Errorf("Embed.Model = %q, want nomic-embed-text", cfg.Embed.Model)
	}
	if cfg.Index.Schedule != "" {
		t.Errorf("Index.Schedule = %q, want empty", cfg.Index.Schedule)
	}
}

func TestLoadDefaultWeights(t *testing.T) {
	t.Setenv("CHATVAULT_HOME", t.TempDir())

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	sum := cfg.Search.SubstringWeight + cfg.Search.KeywordWeight +
		cfg.Search.StemmedWeight + cfg.Search.SemanticWeight
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("default weights sum to %v, want 1.0", sum)
	}
	if cfg.Search.MinSimilarity != 0.2 {
		t.Errorf("Search.MinSimilarity = %v, want 0.2", cfg.Search.MinSimilarity)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	content := `
[data]
chat_db = "/var/backups/chat.db"
data_dir = "/var/chatvault"

[identity]
default_region = "GB"

[contacts]
enabled = false

[contacts.names]
"+15551234567" = "Alice"

[search]
substring_weight = 0.1
keyword_weight = 0.4
stemmed_weight = 0.1
semantic_weight = 0.4
min_similarity = 0.3
default_limit = 25

[embeddings]
server = "http://embed-host:11434"
model = "mxbai-embed-large"
dimension = 1024

[index]
schedule = "0 3 * * *"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(configPath, tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Data.ChatDBPath != "/var/backups/chat.db" {
		t.Errorf("Data.ChatDBPath = %q", cfg.Data.ChatDBPath)
	}
	if cfg.Data.DataDir != "/var/chatvault" {
		t.Errorf("Data.DataDir = %q", cfg.Data.DataDir)
	}
	if cfg.Identity.DefaultRegion != "GB" {
		t.Errorf("Identity.DefaultRegion = %q, want GB", cfg.Identity.DefaultRegion)
	}
	if cfg.Contacts.Enabled {
		t.Error("Contacts.Enabled = true, want false")
	}
	if got := cfg.Contacts.Names["+15551234567"]; got != "Alice" {
		t.Errorf("Contacts.Names[+15551234567] = %q, want Alice", got)
	}
	if cfg.Search.KeywordWeight != 0.4 {
		t.Errorf("Search.KeywordWeight = %v, want 0.4", cfg.Search.KeywordWeight)
	}
	if cfg.Search.DefaultLimit != 25 {
		t.Errorf("Search.DefaultLimit = %d, want 25", cfg.Search.DefaultLimit)
	}
	if cfg.Embed.Server != "http://embed-host:11434" {
		t.Errorf("Embed.Server = %q", cfg.Embed.Server)
	}
	if cfg.Embed.Dimension != 1024 {
		t.Errorf("Embed.Dimension = %d, want 1024", cfg.Embed.Dimension)
	}
	if cfg.Index.Schedule != "0 3 * * *" {
		t.Errorf("Index.Schedule = %q", cfg.Index.Schedule)
	}
}

func TestLoadPartialConfigKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	content := `
[search]
default_limit = 10
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(configPath, tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Search.DefaultLimit != 10 {
		t.Errorf("Search.DefaultLimit = %d, want 10", cfg.Search.DefaultLimit)
	}
	if cfg.Search.KeywordWeight != 0.3 {
		t.Errorf("Search.KeywordWeight = %v, want default 0.3", cfg.Search.KeywordWeight)
	}
	if cfg.Identity.DefaultRegion != "US" {
		t.Errorf("Identity.DefaultRegion = %q, want default US", cfg.Identity.DefaultRegion)
	}
}

func TestLoadMissingConfigFileUsesDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(filepath.Join(tmpDir, "does-not-exist.toml"), tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for missing file", err)
	}
	if cfg.Search.DefaultLimit != 50 {
		t.Errorf("Search.DefaultLimit = %d, want default 50", cfg.Search.DefaultLimit)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[data\nnot toml"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(configPath, tmpDir); err == nil {
		t.Error("Load() with invalid TOML = nil, want error")
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	content := `
[data]
chat_db = "~/backups/chat.db"
data_dir = "~/chatvault-data"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(configPath, tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no user home dir: %v", err)
	}
	if want := filepath.Join(home, "backups", "chat.db"); cfg.Data.ChatDBPath != want {
		t.Errorf("Data.ChatDBPath = %q, want %q", cfg.Data.ChatDBPath, want)
	}
	if want := filepath.Join(home, "chatvault-data"); cfg.Data.DataDir != want {
		t.Errorf("Data.DataDir = %q, want %q", cfg.Data.DataDir, want)
	}
}

func TestDefaultHomeEnvOverride(t *testing.T) {
	t.Setenv("CHATVAULT_HOME", "/opt/chatvault")
	if got := DefaultHome(); got != "/opt/chatvault" {
		t.Errorf("DefaultHome() = %q, want /opt/chatvault", got)
	}
}

func TestIndexPaths(t *testing.T) {
	cfg := &Config{Data: DataConfig{DataDir: "/data"}}

	if got := cfg.SearchIndexPath(); got != filepath.Join("/data", "search_index.db") {
		t.Errorf("SearchIndexPath() = %q", got)
	}
	if got := cfg.VectorIndexPath(); got != filepath.Join("/data", "embedding_index.db") {
		t.Errorf("VectorIndexPath() = %q", got)
	}
}

func TestEnsureHomeDir(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{HomeDir: filepath.Join(tmpDir, "nested", "home")}

	if err := cfg.EnsureHomeDir(); err != nil {
		t.Fatalf("EnsureHomeDir() error = %v", err)
	}
	info, err := os.Stat(cfg.HomeDir)
	if err != nil {
		t.Fatalf("stat home dir: %v", err)
	}
	if !info.IsDir() {
		t.Error("home dir is not a directory")
	}
}
