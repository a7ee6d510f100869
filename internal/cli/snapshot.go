package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/netcore/internal/store"
)

// SnapshotOptions holds flags shared by the snapshot subcommands.
type SnapshotOptions struct {
	*RootOptions
	Database string
	Session  string
}

// SnapshotList is the output of snapshot list.
type SnapshotList struct {
	Snapshots []store.SnapshotInfo `json:"snapshots"`
}

// RenderText writes one line per snapshot, oldest tick first.
func (l SnapshotList) RenderText(w io.Writer) {
	if len(l.Snapshots) == 0 {
		fmt.Fprintln(w, "No snapshots found.")
		return
	}
	for _, s := range l.Snapshots {
		fmt.Fprintf(w, "%s  session=%s label=%s tick=%d active=%d pages=%d\n",
			s.ID, s.Session, s.Label, s.Tick, s.ActiveCount, s.PageCount)
	}
}

// SnapshotDetail is the output of snapshot show.
type SnapshotDetail struct {
	store.SnapshotInfo
	ActiveIDs []uint32 `json:"active_ids"`
}

// RenderText writes the snapshot metadata and its occupied ids.
func (d SnapshotDetail) RenderText(w io.Writer) {
	fmt.Fprintf(w, "ID:             %s\n", d.ID)
	fmt.Fprintf(w, "Session:        %s\n", d.Session)
	fmt.Fprintf(w, "Label:          %s\n", d.Label)
	fmt.Fprintf(w, "Tick:           %d\n", d.Tick)
	fmt.Fprintf(w, "Items per page: %d\n", d.ItemsPerPage)
	fmt.Fprintf(w, "Pages:          %d\n", d.PageCount)
	fmt.Fprintf(w, "Active:         %d\n", d.ActiveCount)
	fmt.Fprintf(w, "Active IDs:     %v\n", d.ActiveIDs)
}

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect stored allocator snapshots",
		Long: `Read allocator occupancy snapshots from the snapshot store.

Examples:
  netcore snapshot list --db ./snapshots.db
  netcore snapshot list --db ./snapshots.db --session match-42
  netcore snapshot show --db ./snapshots.db <snapshot-id>`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "snapshot database (overrides store.path)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshots ordered by tick",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotList(cmd, opts)
		},
	}
	list.Flags().StringVar(&opts.Session, "session", "", "only list snapshots of this session")

	show := &cobra.Command{
		Use:   "show <snapshot-id>",
		Short: "Show one snapshot and its occupied ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotShow(cmd, opts, args[0])
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

// openSnapshotStore resolves the database path from --db or the config and
// opens it. The database must already exist.
func openSnapshotStore(cmd *cobra.Command, opts *SnapshotOptions) (*store.Store, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.Store.Path
	if cmd.Flags().Changed("db") {
		path = opts.Database
	}
	if path == "" {
		return nil, NewExitError(ExitCommandError, "no snapshot database: pass --db or set store.path")
	}
	if err := requireFile(path); err != nil {
		return nil, err
	}
	newFormatter(cmd, opts.RootOptions).VerboseLog("Opening snapshot database %s", path)

	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runSnapshotList(cmd *cobra.Command, opts *SnapshotOptions) error {
	st, err := openSnapshotStore(cmd, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	var infos []store.SnapshotInfo
	if opts.Session != "" {
		infos, err = st.ListSession(cmd.Context(), opts.Session)
	} else {
		infos, err = st.ListSnapshots(cmd.Context())
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list snapshots", err)
	}
	return newFormatter(cmd, opts.RootOptions).Success(SnapshotList{Snapshots: infos})
}

func runSnapshotShow(cmd *cobra.Command, opts *SnapshotOptions, id string) error {
	st, err := openSnapshotStore(cmd, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.ReadSnapshot(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return WrapExitError(ExitFailure, fmt.Sprintf("snapshot %s", id), err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read snapshot", err)
	}
	return newFormatter(cmd, opts.RootOptions).Success(SnapshotDetail{
		SnapshotInfo: snap.SnapshotInfo,
		ActiveIDs:    snap.State.IDs(),
	})
}
