package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/chatvault/internal/chatdb"
	"github.com/wesm/chatvault/internal/config"
	"github.com/wesm/chatvault/internal/contacts"
	"github.com/wesm/chatvault/internal/identity"
)

var (
	cfgFile string
	homeDir string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "chatvault",
	Short: "Offline message archive with hybrid search",
	Long: `chatvault reads a local Messages database (chat.db) read-only,
reconstructs conversations with reactions and edit history folded in,
and searches them with exact, keyword, stemmed, and semantic strategies
combined.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
		slog.SetDefault(logger)

		// --home influences where config.toml is loaded from, like
		// CHATVAULT_HOME.
		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.HomeDir, err)
		}

		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// openStore opens the source Messages database with the configured
// contact resolver.
func openStore() (*chatdb.Store, error) {
	region := cfg.Identity.DefaultRegion

	var resolver contacts.Resolver = contacts.None{}
	if cfg.Contacts.Enabled {
		if len(cfg.Contacts.Names) > 0 {
			// Static maps are keyed by canonical identifier.
			static := make(contacts.Static, len(cfg.Contacts.Names))
			for raw, name := range cfg.Contacts.Names {
				if id, err := identity.Normalize(raw, region); err == nil {
					static[id.Canonical] = name
				}
			}
			resolver = static
		} else {
			resolver = contacts.OpenAddressBook(cfg.Contacts.AddressBookDir, region)
		}
	}

	return chatdb.Open(cfg.Data.ChatDBPath, region, resolver)
}

// parseDateFlag parses an optional YYYY-MM-DD flag value.
func parseDateFlag(value, name string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s date %q: expected YYYY-MM-DD", name, value)
	}
	return &t, nil
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $CHATVAULT_HOME/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "chatvault home directory (default ~/.chatvault)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
