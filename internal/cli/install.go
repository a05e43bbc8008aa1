package cli

import (
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pkgreuse/internal/config"
	"github.com/matzehuels/pkgreuse/pkg/depspec"
	"github.com/matzehuels/pkgreuse/pkg/errors"
	"github.com/matzehuels/pkgreuse/pkg/fallback"
	"github.com/matzehuels/pkgreuse/pkg/observability"
	"github.com/matzehuels/pkgreuse/pkg/pipeline"
)

// installOptions holds the flags of the root command.
type installOptions struct {
	root      string
	manager   string
	noCache   bool
	batchSize int
	dryRun    bool
}

func (o *installOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.root, "root", "r", "", "directory to scan instead of the whole filesystem")
	f.StringVarP(&o.manager, "pm", "p", "", "package manager for missing dependencies (npm, yarn, pnpm)")
	f.BoolVar(&o.noCache, "no-cache", false, "rescan even when cache_ttl enables cached scan results")
	f.IntVar(&o.batchSize, "batch-size", 0, "manifests inspected concurrently per batch")
	f.BoolVar(&o.dryRun, "dry-run", false, "report what would happen without copying or installing")

	_ = cmd.RegisterFlagCompletionFunc("pm", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		var names []string
		for _, m := range fallback.Managers() {
			names = append(names, string(m))
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})
}

// apply overrides cfg with the flags set on cmd.
func (o *installOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("root") {
		cfg.Roots = []string{o.root}
	}
	if f.Changed("pm") {
		cfg.PackageManager = o.manager
	}
	if f.Changed("no-cache") {
		cfg.NoCache = o.noCache
	}
	if f.Changed("batch-size") {
		cfg.BatchSize = o.batchSize
	}
	return cfg.Validate()
}

// runInstall runs one reuse pass in the working directory.
func (c *CLI) runInstall(cmd *cobra.Command, args []string, opts *installOptions) error {
	ctx := cmd.Context()

	cfg, path, err := c.loadConfig()
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, cfg); err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "working directory")
	}

	logger := loggerFromContext(ctx).With("run", runID())
	if path != "" {
		logger.Debug("loaded config", "path", path)
	}

	runner, cc, err := c.newRunner(cfg, cwd, logger)
	if err != nil {
		return err
	}
	defer cc.Close()

	if !c.verbose && stderrIsTerminal() {
		observability.SetPipelineHooks(newSpinnerHooks(ctx, os.Stderr))
		defer observability.Reset()
	}

	prog := newProgress(logger)
	result, err := runner.Execute(ctx, pipeline.Options{
		Specs:      args,
		ProjectDir: cwd,
		Roots:      cfg.Roots,
		InstallDir: cfg.InstallDir,
		DryRun:     opts.dryRun,
	})
	if err != nil {
		return exitError(err)
	}
	prog.done("reuse pass finished")

	printSummary(result, opts.dryRun, cfg.Manager())
	if result.ManifestErr != nil {
		return exitError(result.ManifestErr)
	}
	return nil
}

// runID returns a short identifier attached to every log line of a pass.
func runID() string {
	return uuid.NewString()[:8]
}

// printSummary reports the outcome of a pass.
func printSummary(res *pipeline.Result, dryRun bool, manager fallback.Manager) {
	if len(res.Requested) == 0 {
		printInfo("Nothing to install")
		return
	}

	for _, s := range res.Satisfied {
		printDetail("%s already installed", s)
	}
	if res.Install != nil {
		for _, r := range res.Install.Installed {
			printSuccess("%s@%s", r.Name, StyleNumber.Render(r.Version))
			printFile(r.Path)
		}
		for _, r := range res.Install.Skipped {
			printDetail("%s@%s already present", r.Name, r.Version)
		}
		for _, name := range slices.Sorted(maps.Keys(res.Install.Failed)) {
			printError("%s: %s", name, errors.UserMessage(res.Install.Failed[name]))
		}
	}
	if dryRun {
		printWarning("dry run, nothing was changed")
		for _, r := range res.Resolved {
			printInfo("would copy %s@%s", r.Name, StyleNumber.Render(r.Version))
			printFile(r.Path)
		}
		if len(res.Remainder) > 0 {
			printNextStep("would run", fallbackLine(manager, res.Remainder))
		}
		return
	}
	if len(res.Remainder) > 0 {
		printInfo("%s installed %d missing %s", manager, len(res.Remainder), plural(len(res.Remainder), "dependency", "dependencies"))
	}

	printStats(res)
}

func fallbackLine(manager fallback.Manager, specs []depspec.Spec) string {
	return strings.Join(append([]string{string(manager)}, manager.Args(depspec.Strings(specs))...), " ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
