package main

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"leadscoring/internal/app"
	"leadscoring/internal/config"
	"leadscoring/pkg/contracts"
)

// globalOptions are the flags shared by every command
type globalOptions struct {
	configPath string
	baseDir    string
	logLevel   string
}

// loadConfig reads the configuration and applies the global flag overrides
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.baseDir != "" {
		cfg.Paths.Resolve(o.baseDir)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// withApp builds the application, hands it to fn and shuts it down
func (o *globalOptions) withApp(ctx context.Context, fn func(*app.Application) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	a, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}
	runErr := fn(a)
	if err := a.Stop(context.WithoutCancel(ctx)); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// NewRootCommand builds the pipeline command tree
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &globalOptions{}
	rc := &cobra.Command{
		Use:   "pipeline",
		Short: "Lead scoring data pipeline",
		Long: `Builds the model input table for lead scoring.

Raw lead records are loaded into a SQLite database and carried through
city tier mapping, categorical collapsing and the interaction pivot.
Each stage reads the previous stage's table and fully replaces its own.

Configuration comes from configs/pipeline.yaml (or --config) and
LEADSCORE_* environment variables.
`,
		Version:       contracts.GetFullVersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rc.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "configuration file to read")
	flags.StringVar(&opts.baseDir, "base-dir", "", "directory that relative paths are resolved against")
	flags.StringVar(&opts.logLevel, "log-level", "", "override the configured log level")

	rc.AddCommand(newInitDBCommand(opts, stdout))
	rc.AddCommand(newRunCommand(opts, stdout))
	rc.AddCommand(newStageCommand(opts, stdout))
	rc.AddCommand(newCheckCommand(opts, stdout))
	rc.AddCommand(newExportCommand(opts, stdout))
	rc.AddCommand(newServeCommand(opts, stdout))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}
