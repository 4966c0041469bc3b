package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Database string
}

// ListEntry describes one journaled run.
type ListEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Tasks     int    `json:"tasks"`
	Updates   int    `json:"updates"`
	LastSeq   int64  `json:"last_seq"`
	CreatedAt string `json:"created_at"`
	Error     string `json:"error,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled runs",
		Long: `List every run recorded in a journal database.

Example:
  wfsync list --db ./runs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := openExisting(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return err
	}
	defer st.Close()

	wfs, err := st.ListWorkflows(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list workflows", err)
	}

	entries := make([]ListEntry, len(wfs))
	for i, wf := range wfs {
		entries[i] = ListEntry{
			ID:        wf.ID,
			Title:     wf.Title,
			Status:    wf.Status,
			Tasks:     wf.TaskCount,
			Updates:   wf.UpdateCount,
			LastSeq:   wf.LastSeq,
			CreatedAt: wf.CreatedAt,
			Error:     wf.Error,
		}
	}

	if formatter.JSON() {
		return formatter.Success(entries)
	}

	w := formatter.Writer
	if len(entries) == 0 {
		fmt.Fprintln(w, "No workflows found in database.")
		return nil
	}
	fmt.Fprintf(w, "%-38s %-10s %5s %7s  %s\n", "ID", "STATUS", "TASKS", "UPDATES", "TITLE")
	for _, e := range entries {
		fmt.Fprintf(w, "%-38s %-10s %5d %7d  %s\n", e.ID, e.Status, e.Tasks, e.Updates, e.Title)
		if e.Error != "" && opts.Verbose {
			fmt.Fprintf(w, "  error: %s\n", e.Error)
		}
	}
	return nil
}
