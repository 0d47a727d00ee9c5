package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghostline/ghostxp/internal/domain"
)

func init() {
	leaderboardTopCmd.Flags().IntVar(&topLimit, "limit", 10, "Number of rows")
	leaderboardCmd.AddCommand(leaderboardRecomputeCmd, leaderboardTopCmd, leaderboardRankCmd)
	rootCmd.AddCommand(leaderboardCmd)
}

var topLimit int

var leaderboardCmd = &cobra.Command{
	Use:     "leaderboard",
	Aliases: []string{"lb"},
	Short:   "Recompute and read leaderboards (xp, aesthetic, streak, quests)",
}

var leaderboardRecomputeCmd = &cobra.Command{
	Use:   "recompute [CATEGORY]",
	Short: "Rank every account now and persist the snapshot",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := cmd.Context()
		boards := make(map[domain.LeaderboardCategory][]domain.LeaderboardEntry)
		if len(args) == 1 {
			cat, err := domain.ParseBoard(args[0])
			if err != nil {
				return err
			}
			entries, err := d.Ranker.Recompute(ctx, cat)
			if err != nil {
				return err
			}
			boards[cat] = entries
		} else {
			boards, err = d.Ranker.RecomputeAll(ctx)
			if err != nil {
				return err
			}
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), boards)
		}
		for _, cat := range domain.AllBoards() {
			if entries, ok := boards[cat]; ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ranked %d accounts\n", cat, len(entries))
			}
		}
		return nil
	},
}

var leaderboardTopCmd = &cobra.Command{
	Use:   "top CATEGORY",
	Short: "Show the top of the latest snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := domain.ParseBoard(args[0])
		if err != nil {
			return err
		}

		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		entries, err := d.Ranker.Top(cmd.Context(), cat, topLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No snapshot yet. Run 'ghostxp leaderboard recompute'.")
			return nil
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "RANK\tACCOUNT\tSCORE\tCOMPUTED")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", e.Rank, e.AccountID, e.Score, e.ComputedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var leaderboardRankCmd = &cobra.Command{
	Use:   "rank ACCOUNT CATEGORY",
	Short: "Show an account's rank in the latest snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := domain.ParseBoard(args[1])
		if err != nil {
			return err
		}

		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		e, ok, err := d.Ranker.Rank(cmd.Context(), args[0], cat)
		if err != nil {
			return err
		}
		if jsonOutput {
			if !ok {
				return printJSON(cmd.OutOrStdout(), map[string]any{"rank": nil})
			}
			return printJSON(cmd.OutOrStdout(), e)
		}
		if !ok {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is not ranked on %s\n", args[0], cat)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is #%d on %s (score %d)\n", e.AccountID, e.Rank, cat, e.Score)
		return nil
	},
}
