package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"chemledger/internal/core"
	"chemledger/pkg/domain"
)

const menuText = `
--- Chemical Records Menu ---
1. Create Entry
2. Read Entries
3. Update Entry
4. Delete Entry
5. Audit Trail
6. Sync Table
7. Storage Status
8. Exit
`

func newMenuCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive record menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := &menu{svc: opts.svc, in: bufio.NewScanner(cmd.InOrStdin()), out: cmd.OutOrStdout()}
			return m.run(cmd.Context())
		},
	}
}

// menu drives the service from line oriented input. Failed operations are
// reported and the loop continues; end of input ends the session.
type menu struct {
	svc *core.Service
	in  *bufio.Scanner
	out io.Writer
}

func (m *menu) run(ctx context.Context) error {
	for {
		fmt.Fprint(m.out, menuText)
		choice, ok := m.ask("Choose an option: ")
		if !ok {
			fmt.Fprintln(m.out)
			return m.in.Err()
		}
		switch choice {
		case "1":
			ok = m.create(ctx)
		case "2":
			m.list(ctx)
		case "3":
			ok = m.update(ctx)
		case "4":
			ok = m.delete(ctx)
		case "5":
			m.audit(ctx)
		case "6":
			m.sync(ctx)
		case "7":
			m.status(ctx)
		case "8":
			fmt.Fprintln(m.out, "Exiting.")
			return nil
		default:
			fmt.Fprintln(m.out, "Invalid choice.")
		}
		if !ok {
			fmt.Fprintln(m.out)
			return m.in.Err()
		}
	}
}

// ask prompts and reads one trimmed line. ok is false at end of input.
func (m *menu) ask(prompt string) (string, bool) {
	fmt.Fprint(m.out, prompt)
	if !m.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(m.in.Text()), true
}

func (m *menu) askAll(prompts ...string) ([]string, bool) {
	out := make([]string, 0, len(prompts))
	for _, p := range prompts {
		v, ok := m.ask(p)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func (m *menu) create(ctx context.Context) bool {
	v, ok := m.askAll("Chemical Name: ", "Concentration: ", "Location: ", "Date (YYYY-MM-DD): ")
	if !ok {
		return false
	}
	rec, res, err := m.svc.Create(ctx, domain.Fields{ChemicalName: v[0], Concentration: v[1], Location: v[2], Date: v[3]})
	if err != nil {
		m.report(err)
		return true
	}
	fmt.Fprintf(m.out, "Entry %d added.\n", rec.ID)
	m.degraded(res)
	return true
}

func (m *menu) list(ctx context.Context) {
	records, err := m.svc.List(ctx)
	if err != nil {
		m.report(err)
		return
	}
	_ = writeRecords(m.out, records)
}

func (m *menu) update(ctx context.Context) bool {
	v, ok := m.askAll("Enter ID to update: ", "Field to update: ", "New value: ")
	if !ok {
		return false
	}
	id, err := parseID(v[0])
	if err != nil {
		fmt.Fprintln(m.out, "Invalid ID.")
		return true
	}
	_, res, err := m.svc.Update(ctx, id, domain.Changes{v[1]: v[2]})
	if err != nil {
		m.report(err)
		return true
	}
	fmt.Fprintf(m.out, "Entry %d updated.\n", id)
	m.degraded(res)
	return true
}

func (m *menu) delete(ctx context.Context) bool {
	raw, ok := m.ask("Enter ID to delete: ")
	if !ok {
		return false
	}
	id, err := parseID(raw)
	if err != nil {
		fmt.Fprintln(m.out, "Invalid ID.")
		return true
	}
	res, err := m.svc.Delete(ctx, id)
	if err != nil {
		m.report(err)
		return true
	}
	fmt.Fprintf(m.out, "Entry %d deleted.\n", id)
	m.degraded(res)
	return true
}

func (m *menu) audit(ctx context.Context) {
	entries, err := m.svc.AuditTrail(ctx)
	if err != nil {
		m.report(err)
		return
	}
	_ = writeEntries(m.out, entries)
}

func (m *menu) sync(ctx context.Context) {
	res, err := m.svc.Sync(ctx)
	if err != nil {
		m.report(err)
		return
	}
	fmt.Fprintf(m.out, "Table replicated to %s.\n", res.Table.Target)
}

func (m *menu) status(ctx context.Context) {
	st, err := m.svc.Status(ctx)
	if err != nil {
		m.report(err)
		return
	}
	_ = writeStatus(m.out, st)
}

func (m *menu) report(err error) {
	if domain.IsNotFound(err) {
		fmt.Fprintln(m.out, "Entry not found.")
		return
	}
	fmt.Fprintf(m.out, "Error: %v\n", err)
}

func (m *menu) degraded(res core.Result) {
	if res.Degraded() {
		fmt.Fprintf(m.out, "Note: saved locally, replicated to %s.\n", res.Replication())
	}
}
