// Package cli implements the chemledger command line: record CRUD, the audit
// trail, table re-sync and the interactive menu.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chemledger/internal/config"
	"chemledger/internal/core"
)

// RootOptions holds global flags and the state opened for one invocation.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool
	Trace      bool

	cfg     *config.Config
	svc     *core.Service
	logger  *zap.Logger
	metrics *core.PrometheusMetricsRecorder
	expvar  *core.ExpvarMetricsRecorder
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the chemledger CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chemledger",
		Short: "Chemical inventory records with a replicated audit log",
		Long: `chemledger keeps a table of chemical records on local disk and replicates
it, together with a journal of every creation, to a remote store (WebHDFS or
S3). When the remote store is unreachable the copies go to a local fallback
directory instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.open(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "chemledger.yaml", "config file (missing file means defaults)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVar(&opts.Trace, "trace", false, "write a JSON span per operation to stderr")

	cmd.AddCommand(newCreateCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newUpdateCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newMenuCommand(opts))

	return cmd
}

// Execute runs the CLI and returns the process exit code. Errors are written
// in the selected output format.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if cerr := opts.close(); cerr != nil && err == nil {
		err = WrapExitError(ExitCommandError, "shutdown", cerr)
	}
	if err == nil {
		return ExitSuccess
	}
	code, exit := classify(err)
	f := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr}
	if !isValidFormat(f.Format) {
		f.Format = "text"
	}
	_ = f.Error(code, err.Error())
	return exit
}

// open loads configuration and wires the record service for the command
// about to run.
func (o *RootOptions) open(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	level := cfg.Logging.Level
	if o.Verbose {
		level = "debug"
	}
	logger, err := newZapLogger(level, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "init logger", err)
	}
	o.logger = logger

	svcOpts := []core.ServiceOption{core.WithLogger(newLogAdapter(logger))}
	var recorders []core.MetricsRecorder
	if cfg.Metrics.Textfile != "" {
		rec, err := core.NewPrometheusMetricsRecorder(nil)
		if err != nil {
			return WrapExitError(ExitCommandError, "init metrics", err)
		}
		o.metrics = rec
		recorders = append(recorders, rec)
	}
	if cfg.Metrics.Expvar != "" {
		o.expvar = core.NewExpvarMetricsRecorder("")
		recorders = append(recorders, o.expvar)
	}
	if len(recorders) > 0 {
		svcOpts = append(svcOpts, core.WithMetricsRecorder(core.CombineMetricsRecorders(recorders...)))
	}
	if o.Trace || cfg.Logging.Trace {
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(cmd.ErrOrStderr())))
	}
	svc, err := core.Open(cmd.Context(), cfg, svcOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "open record store", err)
	}
	o.cfg = cfg
	o.svc = svc
	return nil
}

// close flushes metrics and releases the service. Safe to call when open
// never ran.
func (o *RootOptions) close() error {
	var errs []error
	if o.metrics != nil && o.cfg != nil {
		if err := o.metrics.WriteTextfile(o.cfg.Metrics.Textfile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if o.expvar != nil && o.cfg != nil {
		if err := o.expvar.WriteSnapshot(o.cfg.Metrics.Expvar); err != nil {
			errs = append(errs, fmt.Errorf("write expvar snapshot: %w", err))
		}
	}
	if o.svc != nil {
		errs = append(errs, o.svc.Close())
	}
	if o.logger != nil {
		_ = o.logger.Sync()
	}
	return errors.Join(errs...)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
