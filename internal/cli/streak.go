package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghostline/ghostxp/internal/domain"
)

func init() {
	rootCmd.AddCommand(tickCmd, streaksCmd)
}

var tickCmd = &cobra.Command{
	Use:   "tick ACCOUNT TYPE",
	Short: "Record today's activity for a streak",
	Long: `Tick a streak (daily_login, productivity, study, daily_quest). A second
tick on the same calendar day changes nothing; a missed day restarts at 1.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		res, err := d.Engine.Tick(cmd.Context(), args[0], domain.StreakType(args[1]), timeNow())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}

		out := cmd.OutOrStdout()
		switch {
		case res.WasReset:
			fmt.Fprintf(out, "%s streak restarted at %d (best %d)\n", args[1], res.Count, res.BestStreak)
		case res.WasIncremented:
			fmt.Fprintf(out, "%s streak: %d days (best %d)\n", args[1], res.Count, res.BestStreak)
		default:
			fmt.Fprintf(out, "%s already counted today: %d days\n", args[1], res.Count)
		}
		return nil
	},
}

var streaksCmd = &cobra.Command{
	Use:   "streaks ACCOUNT",
	Short: "List an account's streaks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		streaks, err := d.Engine.Streaks(cmd.Context(), args[0], timeNow())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), streaks)
		}
		if len(streaks) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No streaks yet.")
			return nil
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "TYPE\tCOUNT\tBEST\tLAST\tACTIVE")
		for _, s := range streaks {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%t\n",
				s.Type, s.Count, s.BestStreak,
				s.LastUpdated.In(d.Engine.Location()).Format("2006-01-02"),
				s.IsActive,
			)
		}
		return w.Flush()
	},
}
