package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pkgreuse/internal/config"
	"github.com/matzehuels/pkgreuse/pkg/buildinfo"
	"github.com/matzehuels/pkgreuse/pkg/cache"
	"github.com/matzehuels/pkgreuse/pkg/crawl"
	"github.com/matzehuels/pkgreuse/pkg/fallback"
	"github.com/matzehuels/pkgreuse/pkg/match"
	"github.com/matzehuels/pkgreuse/pkg/pipeline"
)

// =============================================================================
// Constants
// =============================================================================

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	verbose    bool
	configPath string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
// The root command itself runs a reuse pass.
func (c *CLI) RootCommand() *cobra.Command {
	opts := &installOptions{}
	root := &cobra.Command{
		Use:   "pkgreuse [flags] [dependency...]",
		Short: "Reuse node packages already installed on this machine",
		Long: `pkgreuse installs dependencies by copying matching packages that already
exist in other projects on disk, and hands anything it cannot find to npm,
yarn or pnpm.

Dependencies are given as "name" or "name@version". Without arguments the
dependencies of ./package.json are installed.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		Args:         cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.verbose {
				c.SetLogLevel(LogDebug)
			}
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInstall(cmd, args, opts)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/pkgreuse/config.toml)")
	opts.register(root)

	root.AddCommand(c.configCommand())
	root.AddCommand(c.cacheCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use. The returned cache must be
// closed by the caller.
func (c *CLI) newRunner(cfg *config.Config, projectDir string, logger *log.Logger) (*pipeline.Runner, cache.Cache, error) {
	cc, err := newCache(cfg)
	if err != nil {
		return nil, nil, err
	}
	crawler := crawl.New(crawl.Options{
		InstallDir: cfg.InstallDir,
		Exclude:    cfg.Exclude,
		Cache:      cc,
		CacheTTL:   cfg.CacheTTL,
		Logger:     logger,
	})
	matcher := match.New(match.Options{
		BatchSize:  cfg.BatchSize,
		InstallDir: cfg.InstallDir,
		Logger:     logger,
	})
	dispatcher := &fallback.Dispatcher{
		Manager: cfg.Manager(),
		Dir:     projectDir,
		Logger:  logger,
	}
	return pipeline.NewRunner(crawler, matcher, dispatcher, logger), cc, nil
}

// newCache opens the crawl cache, or a NullCache when caching is off or the
// cache directory cannot be determined.
func newCache(cfg *config.Config) (cache.Cache, error) {
	if !cfg.CacheEnabled() {
		return cache.NewNullCache(), nil
	}
	dir, err := config.CacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// loadConfig reads the configuration named by --config (or the default file).
func (c *CLI) loadConfig() (*config.Config, string, error) {
	return config.Load(c.configPath)
}
