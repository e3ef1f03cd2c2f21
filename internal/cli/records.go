package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chemledger/internal/core"
	"chemledger/pkg/domain"
)

// MutationOutput is the JSON payload of create, update, delete and sync.
type MutationOutput struct {
	Record      *domain.Record   `json:"record,omitempty"`
	Replication core.Replication `json:"replication"`
	Result      core.Result      `json:"result"`
}

func newMutationOutput(rec *domain.Record, res core.Result) MutationOutput {
	return MutationOutput{Record: rec, Replication: res.Replication(), Result: res}
}

// warnDegraded reports copies that did not reach the remote store.
func warnDegraded(f *OutputFormatter, res core.Result) {
	if !res.Degraded() {
		return
	}
	f.Warn("not every copy reached the remote store (table: %s%s)", res.Table.Target, auditTarget(res))
	if msg := res.Table.Error(); msg != "" {
		f.VerboseLog("table: %s", msg)
	}
	if msg := res.Audit.Error(); msg != "" {
		f.VerboseLog("audit: %s", msg)
	}
}

func auditTarget(res core.Result) string {
	if res.Audit.Target == "" {
		return ""
	}
	return fmt.Sprintf(", audit: %s", res.Audit.Target)
}

func newCreateCommand(opts *RootOptions) *cobra.Command {
	var fields domain.Fields
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a record; the id is assigned automatically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, res, err := opts.svc.Create(cmd.Context(), fields)
			if err != nil {
				return err
			}
			f := opts.formatter(cmd)
			warnDegraded(f, res)
			return f.Success(newMutationOutput(&rec, res), func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Entry %d added.\n", rec.ID)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&fields.ChemicalName, "name", "", "chemical name")
	cmd.Flags().StringVar(&fields.Concentration, "concentration", "", "concentration, e.g. 10%")
	cmd.Flags().StringVar(&fields.Location, "location", "", "storage location")
	cmd.Flags().StringVar(&fields.Date, "date", "", "date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"read"},
		Short:   "Print every record",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := opts.svc.List(cmd.Context())
			if err != nil {
				return err
			}
			if records == nil {
				records = []domain.Record{}
			}
			return opts.formatter(cmd).Success(records, func(w io.Writer) error {
				return writeRecords(w, records)
			})
		},
	}
}

func newGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rec, err := opts.svc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return opts.formatter(cmd).Success(rec, func(w io.Writer) error {
				return writeRecords(w, []domain.Record{rec})
			})
		},
	}
}

func newUpdateCommand(opts *RootOptions) *cobra.Command {
	var sets []string
	cmd := &cobra.Command{
		Use:   "update <id> --set field=value...",
		Short: "Change fields of a record",
		Long: `Change fields of a record. Fields: chemical_name, concentration, location,
date. The id cannot be changed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			changes, err := parseChanges(sets)
			if err != nil {
				return err
			}
			rec, res, err := opts.svc.Update(cmd.Context(), id, changes)
			if err != nil {
				return err
			}
			f := opts.formatter(cmd)
			warnDegraded(f, res)
			return f.Success(newMutationOutput(&rec, res), func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Entry %d updated.\n", rec.ID)
				return err
			})
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value to change (repeatable)")
	return cmd
}

func newDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a record; its id is never reused",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			res, err := opts.svc.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			f := opts.formatter(cmd)
			warnDegraded(f, res)
			return f.Success(newMutationOutput(nil, res), func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Entry %d deleted.\n", id)
				return err
			})
		},
	}
}

func writeRecords(w io.Writer, records []domain.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No entries.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(domain.Columns, "\t"))
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.ChemicalName, r.Concentration, r.Location, r.Date)
	}
	return tw.Flush()
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitFailure, fmt.Sprintf("invalid id %q", raw))
	}
	return id, nil
}

func parseChanges(sets []string) (domain.Changes, error) {
	changes := domain.Changes{}
	for _, s := range sets {
		field, value, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(field) == "" {
			return nil, NewExitError(ExitFailure, fmt.Sprintf("invalid change %q: want field=value", s))
		}
		changes[strings.TrimSpace(field)] = value
	}
	return changes, nil
}
