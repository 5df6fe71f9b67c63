package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/shardstate/internal/accountsync"
	"github.com/roach88/shardstate/internal/app"
	"github.com/roach88/shardstate/internal/ir"
)

// AccountsListOptions holds flags for accounts list.
type AccountsListOptions struct {
	*RootOptions
	Start string
	End   string
	Limit int
}

// ArchiveOptions holds flags shared by the archive subcommands.
type ArchiveOptions struct {
	*RootOptions
	Snapshot string
}

// NewAccountsCommand creates the accounts command group.
func NewAccountsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List, export and import accounts",
	}
	cmd.AddCommand(newAccountsListCommand(rootOpts))
	cmd.AddCommand(newAccountsSummaryCommand(rootOpts))

	archive := &ArchiveOptions{RootOptions: rootOpts}
	cmd.PersistentFlags().StringVar(&archive.Snapshot, "snapshot", "", "snapshot archive path (overrides sync.snapshotPath)")
	cmd.AddCommand(newAccountsExportCommand(archive))
	cmd.AddCommand(newAccountsImportCommand(archive))
	cmd.AddCommand(newAccountsCyclesCommand(archive))
	return cmd
}

func newAccountsListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountsListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List stored accounts by id",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAccountsList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "first account id")
	cmd.Flags().StringVar(&opts.End, "end", accountsync.MaxAccountID, "last account id")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum accounts (0 = accountBucketSize)")

	return cmd
}

func runAccountsList(opts *AccountsListOptions, cmd *cobra.Command) error {
	n, err := openNode(opts.RootOptions, nodeOptions{requireDB: true})
	if err != nil {
		return err
	}
	defer n.Close()

	page, err := n.sync.GetAccountData(cmd.Context(), opts.Start, opts.End, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list accounts", err)
	}

	if opts.Format == "json" {
		f := newFormatter(opts.RootOptions, cmd)
		return f.Success(page)
	}

	w := cmd.OutOrStdout()
	if len(page.Accounts) == 0 {
		fmt.Fprintln(w, "No accounts.")
		return nil
	}
	debug, _ := app.App(n.bank).(app.DebugValuer)
	for _, a := range page.Accounts {
		if debug != nil {
			fmt.Fprintf(w, "%s  %s  %d\n", debug.GetAccountDebugValue(a), short(a.StateID), a.Timestamp)
			continue
		}
		data, err := ir.MarshalCanonical(a.Data)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode account "+a.AccountID, err)
		}
		fmt.Fprintf(w, "%s  %s  %d  %s\n", a.AccountID, short(a.StateID), a.Timestamp, data)
	}
	if page.More {
		fmt.Fprintf(w, "... more accounts from %q\n", page.Next)
	}
	return nil
}

func newAccountsSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "summary",
		Short:         "Rebuild the application's data summary from stored accounts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(rootOpts, nodeOptions{requireDB: true})
			if err != nil {
				return err
			}
			defer n.Close()

			sum, err := n.sync.Summarize(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to summarize accounts", err)
			}
			data := sum.Snapshot().Data
			if rootOpts.Format == "json" {
				f := newFormatter(rootOpts, cmd)
				return f.Success(data)
			}
			w := cmd.OutOrStdout()
			if len(data) == 0 {
				fmt.Fprintln(w, "No summary.")
				return nil
			}
			for _, k := range data.SortedKeys() {
				fmt.Fprintf(w, "%s: %v\n", k, data[k])
			}
			return nil
		},
	}
}

func parseCycle(arg string) (uint64, error) {
	cycle, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, "invalid cycle number", err)
	}
	return cycle, nil
}

func newAccountsExportCommand(opts *ArchiveOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "export <cycle>",
		Short:         "Archive every stored account under a cycle number",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cycle, err := parseCycle(args[0])
			if err != nil {
				return err
			}
			n, err := openNode(opts.RootOptions, nodeOptions{requireDB: true, archive: true, snapshotPath: opts.Snapshot})
			if err != nil {
				return err
			}
			defer n.Close()

			count, err := n.sync.Export(cmd.Context(), cycle)
			if err != nil {
				return WrapExitError(ExitFailure, "export failed", err)
			}
			return reportCount(opts.RootOptions, cmd, "exported", cycle, count)
		},
	}
}

func newAccountsImportCommand(opts *ArchiveOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <cycle>",
		Short: "Reset accounts to the ones archived under a cycle number",
		Long: `Reset every account archived under the cycle to its archived record.
Each record's hash is checked against its data first; a mismatch rejects the
whole batch. Accounts not in the archive are left alone.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cycle, err := parseCycle(args[0])
			if err != nil {
				return err
			}
			n, err := openNode(opts.RootOptions, nodeOptions{archive: true, snapshotPath: opts.Snapshot})
			if err != nil {
				return err
			}
			defer n.Close()

			count, err := n.sync.Restore(cmd.Context(), cycle)
			if err != nil {
				return WrapExitError(ExitFailure, "import failed", err)
			}
			return reportCount(opts.RootOptions, cmd, "imported", cycle, count)
		},
	}
}

func newAccountsCyclesCommand(opts *ArchiveOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "cycles",
		Short:         "List archived cycle numbers",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.RootOptions)
			if err != nil {
				return err
			}
			archive, err := openArchive(cfg, opts.Snapshot)
			if err != nil {
				return err
			}
			defer archive.Close()

			cycles, err := archive.Cycles()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list cycles", err)
			}
			if opts.Format == "json" {
				f := newFormatter(opts.RootOptions, cmd)
				return f.Success(cycles)
			}
			for _, c := range cycles {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func reportCount(opts *RootOptions, cmd *cobra.Command, verb string, cycle uint64, count int) error {
	if opts.Format == "json" {
		f := newFormatter(opts, cmd)
		return f.Success(map[string]any{"cycle": cycle, verb: count})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s %d account(s) for cycle %d\n", verb, count, cycle)
	return nil
}
