// Package config handles loading and managing chatvault configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the chatvault configuration.
type Config struct {
	Data     DataConfig     `toml:"data"`
	Identity IdentityConfig `toml:"identity"`
	Contacts ContactsConfig `toml:"contacts"`
	Search   SearchConfig   `toml:"search"`
	Embed    EmbedConfig    `toml:"embeddings"`
	Index    IndexConfig    `toml:"index"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DataConfig holds source database configuration.
type DataConfig struct {
	// ChatDBPath is the Messages database. Defaults to
	// ~/Library/Messages/chat.db. Opened strictly read-only.
	ChatDBPath string `toml:"chat_db"`
	// DataDir holds the search and vector indexes.
	DataDir string `toml:"data_dir"`
}

// IdentityConfig holds identifier normalization configuration.
type IdentityConfig struct {
	// DefaultRegion is the ISO region used to parse phone numbers without
	// a country calling code (e.g. "US", "GB").
	DefaultRegion string `toml:"default_region"`
}

// ContactsConfig holds contact name resolution configuration.
type ContactsConfig struct {
	Enabled bool `toml:"enabled"`
	// AddressBookDir overrides the AddressBook location (mainly for tests).
	AddressBookDir string `toml:"address_book_dir"`
	// Names maps canonical identifiers to display names, overriding the
	// AddressBook.
	Names map[string]string `toml:"names"`
}

// SearchConfig holds hybrid search tuning.
type SearchConfig struct {
	SubstringWeight float64 `toml:"substring_weight"`
	KeywordWeight   float64 `toml:"keyword_weight"`
	StemmedWeight   float64 `toml:"stemmed_weight"`
	SemanticWeight  float64 `toml:"semantic_weight"`
	// MinSimilarity excludes semantic hits below this cosine similarity.
	MinSimilarity float64 `toml:"min_similarity"`
	DefaultLimit  int     `toml:"default_limit"`
}

// EmbedConfig holds embedding model configuration for semantic search.
type EmbedConfig struct {
	Server    string `toml:"server"` // Ollama server URL
	Model     string `toml:"model"`
	Dimension int    `toml:"dimension"`
}

// IndexConfig holds index maintenance configuration.
type IndexConfig struct {
	// Schedule is a cron expression for periodic index rebuilds
	// (e.g. "0 3 * * *" for 3am daily). Empty disables scheduling.
	Schedule string `toml:"schedule"`
}

// DefaultHome returns the default chatvault home directory.
// Respects the CHATVAULT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("CHATVAULT_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatvault"
	}
	return filepath.Join(home, ".chatvault")
}

// defaultChatDBPath returns the standard Messages database location.
func defaultChatDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chat.db"
	}
	return filepath.Join(home, "Library", "Messages", "chat.db")
}

// Load reads the configuration from the specified file. If path is empty,
// uses <home>/config.toml; if home is empty, uses DefaultHome(). The
// config file is optional: defaults apply when it does not exist.
func Load(path, home string) (*Config, error) {
	if home == "" {
		home = DefaultHome()
	}
	if path == "" {
		path = filepath.Join(home, "config.toml")
	}

	cfg := &Config{
		HomeDir: home,
		Data: DataConfig{
			ChatDBPath: defaultChatDBPath(),
			DataDir:    home,
		},
		Identity: IdentityConfig{
			DefaultRegion: "US",
		},
		Contacts: ContactsConfig{
			Enabled: true,
		},
		Search: SearchConfig{
			SubstringWeight: 0.2,
			KeywordWeight:   0.3,
			StemmedWeight:   0.2,
			SemanticWeight:  0.3,
			MinSimilarity:   0.2,
			DefaultLimit:    50,
		},
		Embed: EmbedConfig{
			Server:    "http://localhost:11434",
			Model:     "nomic-embed-text",
			Dimension: 768,
		},
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Data.ChatDBPath = expandPath(cfg.Data.ChatDBPath)
	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	cfg.Contacts.AddressBookDir = expandPath(cfg.Contacts.AddressBookDir)

	return cfg, nil
}

// EnsureHomeDir creates the home directory if it does not exist.
func (c *Config) EnsureHomeDir() error {
	return os.MkdirAll(c.HomeDir, 0o755)
}

// SearchIndexPath returns the path to the full-text index database.
func (c *Config) SearchIndexPath() string {
	return filepath.Join(c.Data.DataDir, "search_index.db")
}

// VectorIndexPath returns the path to the semantic embedding index database.
func (c *Config) VectorIndexPath() string {
	return filepath.Join(c.Data.DataDir, "embedding_index.db")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
