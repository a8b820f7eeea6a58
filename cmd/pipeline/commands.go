package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"leadscoring/internal/app"
	"leadscoring/internal/config"
	"leadscoring/internal/exporter"
	"leadscoring/internal/operations"
	"leadscoring/internal/validation"
)

func newInitDBCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the pipeline database if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return opts.withApp(c.Context(), func(a *app.Application) error {
				resp, err := a.RunStep(c.Context(), config.StepBuildDB, "")
				printRun(stdout, resp)
				return err
			})
		},
	}
}

func newRunCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every pipeline stage in order",
		Long: `
Runs build_db, check_raw_schema, load_data, map_city_tier,
map_categorical_vars, map_interactions and check_model_input_schema.
The first failing stage stops the run; later stages are skipped.
`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return opts.withApp(c.Context(), func(a *app.Application) error {
				resp, err := a.RunPipeline(c.Context(), mode)
				printRun(stdout, resp)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "pivot mode: auto, training or inference (default from config)")
	return cmd
}

func newStageCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:       "stage <id>",
		Short:     "Run a single stage against the tables already in the database",
		Long:      "\nRuns one stage on its own. Stages: " + strings.Join(config.PipelineSteps, ", ") + ".\n",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.PipelineSteps,
		RunE: func(c *cobra.Command, args []string) error {
			return opts.withApp(c.Context(), func(a *app.Application) error {
				resp, err := a.RunStep(c.Context(), args[0], mode)
				printRun(stdout, resp)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "pivot mode for map_interactions")
	return cmd
}

func newCheckCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:       "check raw|model-input",
		Short:     "Check the raw file or the model input table against the configured schema",
		Long:      "\nPrints the check result as JSON and exits non-zero unless the check passed.\n",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"raw", "model-input"},
		RunE: func(c *cobra.Command, args []string) error {
			return opts.withApp(c.Context(), func(a *app.Application) error {
				v := validation.NewSchemaValidator(config.PolicyFail, a.Logger)
				var (
					res validation.Result
					err error
				)
				switch args[0] {
				case "raw":
					res, err = v.CheckRawSchema(c.Context(), a.Config.Paths.RawFile, a.Mappings.RawSchema())
				default:
					res, err = v.CheckModelInputSchema(c.Context(), a.Config.Paths.DBFile, a.Mappings.ModelInputSchema())
				}
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(res); encErr != nil {
					return encErr
				}
				return err
			})
		},
	}
}

func newExportCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "export <table> [output]",
		Short: "Write a persisted table to a CSV or XLSX file",
		Long: `
Writes a table from the pipeline database to a file. The format follows
the extension (.csv or .xlsx). Without an output path the table goes to
` + config.DefaultExportsDir + `/<table>.csv.
`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(c *cobra.Command, args []string) error {
			return opts.withApp(c.Context(), func(a *app.Application) error {
				table := args[0]
				out := filepath.Join(config.DefaultExportsDir, table+".csv")
				if len(args) == 2 {
					out = args[1]
				}
				rows, err := exporter.ExportTable(c.Context(), a.Config.Paths.DBFile, table, out, a.Logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "exported %d rows from %s to %s\n", rows, table, out)
				return nil
			})
		},
	}
}

func newServeCommand(opts *globalOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline on its schedule and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return opts.withApp(ctx, func(a *app.Application) error {
				fmt.Fprintf(stdout, "%s %s listening on %s\n", config.AppName, config.AppVersion, a.Config.Server.Addr)
				return a.Serve(ctx)
			})
		},
	}
}

// printRun writes a per-step summary of a run
func printRun(w io.Writer, resp *operations.RunResponse) {
	if resp == nil {
		return
	}
	fmt.Fprintf(w, "run %s %s (mode %s, %s)\n", resp.ID, resp.Status, resp.Mode, resp.Duration.Round(time.Millisecond))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tROWS\tMESSAGE")
	for _, s := range resp.Steps {
		msg := s.Message
		if s.Error != "" {
			msg = s.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Status, s.Rows, msg)
	}
	_ = tw.Flush()
}
