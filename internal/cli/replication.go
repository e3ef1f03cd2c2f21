package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"chemledger/internal/audit"
	"chemledger/internal/blob"
	"chemledger/internal/core"
)

func newAuditCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Print the creation journal, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := opts.svc.AuditTrail(cmd.Context())
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []audit.Entry{}
			}
			return opts.formatter(cmd).Success(entries, func(w io.Writer) error {
				return writeEntries(w, entries)
			})
		},
	}
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replicate the current table again, healing a stale remote copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := opts.svc.Sync(cmd.Context())
			if err != nil {
				return err
			}
			f := opts.formatter(cmd)
			warnDegraded(f, res)
			return f.Success(newMutationOutput(nil, res), func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Table replicated to %s.\n", res.Table.Target)
				return err
			})
		},
	}
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"ls"},
		Short:   "Show where the table and audit log are stored and list the remote directory",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := opts.svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			if st.Listing == nil {
				st.Listing = []blob.Info{}
			}
			return opts.formatter(cmd).Success(st, func(w io.Writer) error {
				return writeStatus(w, st)
			})
		},
	}
}

func writeStatus(w io.Writer, st core.StorageStatus) error {
	remote := "not configured"
	if st.RemoteEnabled {
		remote = "configured"
	}
	fmt.Fprintf(w, "Remote store: %s\n", remote)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, f := range st.Files {
		where := "missing"
		if f.Present {
			where = string(f.Location)
		}
		fmt.Fprintf(tw, "%s\t%s\n", f.Name, where)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Files in %s:\n", st.ListedFrom)
	if len(st.Listing) == 0 {
		_, err := fmt.Fprintln(w, "No files.")
		return err
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "key\tsize_bytes\tlast_modified")
	for _, info := range st.Listing {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.Format(time.RFC3339))
	}
	return tw.Flush()
}

func writeEntries(w io.Writer, entries []audit.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No creations recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "recorded_at\taction\tid\tchemical_name\tconcentration\tlocation\tdate")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			e.RecordedAt.Format(time.RFC3339), e.Action, e.ID, e.ChemicalName, e.Concentration, e.Location, e.Date)
	}
	return tw.Flush()
}
