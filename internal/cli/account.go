package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghostline/ghostxp/internal/app/progression"
	"github.com/ghostline/ghostxp/internal/domain"
)

func init() {
	accountEnsureCmd.Flags().StringVar(&accountPlan, "plan", string(domain.PlanFree), "Plan tier: free, plus or pro")
	accountEnsureCmd.Flags().BoolVar(&accountGuest, "guest", false, "Create the account as a guest")
	accountHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of ledger events")

	accountCmd.AddCommand(accountEnsureCmd, accountShowCmd, accountUpgradeCmd, accountHistoryCmd, accountVerifyCmd)
	rootCmd.AddCommand(accountCmd)
}

var (
	accountPlan  string
	accountGuest bool
	historyLimit int
)

var accountCmd = &cobra.Command{
	Use:     "account",
	Aliases: []string{"acc"},
	Short:   "Create and inspect progression profiles",
}

var accountEnsureCmd = &cobra.Command{
	Use:   "ensure ACCOUNT",
	Short: "Create a profile, or update its plan and guest flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan := domain.PlanTier(accountPlan)
		switch plan {
		case domain.PlanFree, domain.PlanPlus, domain.PlanPro:
		default:
			return fmt.Errorf("unknown plan %q", accountPlan)
		}

		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		p, created, err := d.Engine.EnsureAccount(cmd.Context(), domain.Identity{
			AccountID: args[0],
			PlanTier:  plan,
			IsGuest:   accountGuest,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), p)
		}
		verb := "updated"
		if created {
			verb = "created"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (plan %s)\n", verb, p.AccountID, p.PlanTier)
		return nil
	},
}

var accountShowCmd = &cobra.Command{
	Use:   "show ACCOUNT",
	Short: "Show level, coins, streaks and evolution progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := cmd.Context()
		p, err := d.Engine.GetProfile(ctx, args[0])
		if err != nil {
			return err
		}
		evo, err := d.Engine.EvolutionStatus(ctx, args[0])
		if err != nil {
			return err
		}
		streaks, err := d.Engine.Streaks(ctx, args[0], timeNow())
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"profile":   p,
				"progress":  progression.ProgressFor(p.TotalXP),
				"evolution": evo,
				"streaks":   streaks,
			})
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintf(w, "ACCOUNT\t%s\n", p.AccountID)
		fmt.Fprintf(w, "PLAN\t%s\n", p.PlanTier)
		fmt.Fprintf(w, "LEVEL\t%d  %s\n", p.Level, levelBar(progression.ProgressFor(p.TotalXP)))
		fmt.Fprintf(w, "FORM\t%s (stage %d)  %s\n", evo.Name, evo.Stage, evolutionBar(evo))
		fmt.Fprintf(w, "COINS\t%d\n", p.Coins)
		fmt.Fprintf(w, "QUESTS\t%d completed\n", p.QuestsCompleted)
		fmt.Fprintf(w, "TASKS\t%d completed\n", p.TasksCompleted)
		for _, s := range streaks {
			state := "active"
			if !s.IsActive {
				state = "lapsed"
			}
			fmt.Fprintf(w, "STREAK\t%s: %d days (best %d, %s)\n", s.Type, s.Count, s.BestStreak, state)
		}
		return w.Flush()
	},
}

var accountUpgradeCmd = &cobra.Command{
	Use:   "upgrade ACCOUNT",
	Short: "Convert a guest account into a full account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		p, err := d.Engine.UpgradeGuest(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), p)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is no longer a guest\n", p.AccountID)
		return nil
	},
}

var accountHistoryCmd = &cobra.Command{
	Use:   "history ACCOUNT",
	Short: "List the most recent XP ledger events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		events, err := d.Engine.History(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), events)
		}
		if len(events) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No XP events yet.")
			return nil
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "WHEN\tAMOUNT\tCATEGORY\tREASON")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%+d\t%s\t%s\n",
				e.CreatedAt.Format("2006-01-02 15:04"),
				e.Amount,
				e.Category,
				e.Reason,
			)
		}
		return w.Flush()
	},
}

var accountVerifyCmd = &cobra.Command{
	Use:   "verify ACCOUNT",
	Short: "Check that the stored total matches the XP ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		r, err := d.Engine.VerifyLedger(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), r); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "total %d, ledger %d, level %d\n", r.TotalXP, r.LedgerSum, r.Level)
		}
		if !r.Consistent {
			return fmt.Errorf("ledger mismatch for %s", r.AccountID)
		}
		return nil
	},
}
