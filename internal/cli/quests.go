package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ghostline/ghostxp/internal/app/progression"
	"github.com/ghostline/ghostxp/internal/domain"
)

func init() {
	questsListCmd.Flags().StringVar(&questType, "type", "", "Filter by type: daily, weekly or special")
	questsListCmd.Flags().StringVar(&questStatus, "status", "", "Filter by status: active, completed or expired")

	questsCmd.AddCommand(questsListCmd, questsDailyCmd, questsWeeklyCmd, questsCompleteCmd, questsSweepCmd)
	rootCmd.AddCommand(questsCmd)
}

var (
	questType   string
	questStatus string
)

var questsCmd = &cobra.Command{
	Use:   "quests",
	Short: "Create, list and complete quests",
}

var questsListCmd = &cobra.Command{
	Use:     "list ACCOUNT",
	Aliases: []string{"ls"},
	Short:   "List an account's quests, expiring overdue ones first",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		quests, err := d.Engine.ListQuests(cmd.Context(), args[0], domain.QuestFilter{
			Type:   domain.QuestType(questType),
			Status: domain.QuestStatus(questStatus),
		})
		if err != nil {
			return err
		}
		return printQuests(cmd.OutOrStdout(), quests)
	},
}

var questsDailyCmd = &cobra.Command{
	Use:   "daily ACCOUNT",
	Short: "Create today's daily quests (idempotent)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuestBatch(cmd, args[0], "daily")
	},
}

var questsWeeklyCmd = &cobra.Command{
	Use:   "weekly ACCOUNT",
	Short: "Create this week's weekly quests (idempotent)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuestBatch(cmd, args[0], "weekly")
	},
}

func runQuestBatch(cmd *cobra.Command, accountID, kind string) error {
	d, err := openDaemon(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	var batch progression.QuestBatch
	if kind == "weekly" {
		batch, err = d.Engine.CreateWeeklyQuests(cmd.Context(), accountID)
	} else {
		batch, err = d.Engine.CreateDailyQuests(cmd.Context(), accountID)
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), batch)
	}
	if !batch.Created {
		fmt.Fprintf(cmd.OutOrStdout(), "%s quests already exist for this period\n", kind)
	}
	return printQuests(cmd.OutOrStdout(), batch.Quests)
}

var questsCompleteCmd = &cobra.Command{
	Use:   "complete ACCOUNT QUEST_ID",
	Short: "Complete an active quest and pay its reward",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		up, err := d.Engine.CompleteQuest(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), up)
		}

		out := cmd.OutOrStdout()
		switch {
		case up.AlreadyTerminal:
			fmt.Fprintf(out, "quest %q is already %s\n", up.Quest.Title, up.Quest.Status)
		case up.Completed && up.Reward != nil:
			fmt.Fprintf(out, "completed %q: +%d XP, +%d coins → %d XP total\n",
				up.Quest.Title, up.Quest.XPReward, up.Quest.CoinReward, up.Reward.NewTotal)
		default:
			fmt.Fprintf(out, "quest %q: %d/%d\n", up.Quest.Title, up.Quest.Progress, up.Quest.Target)
		}
		return nil
	},
}

var questsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire every overdue active quest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		n, err := d.Engine.SweepExpiredQuests(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]int64{"expired": n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d quests\n", n)
		return nil
	},
}

func printQuests(out io.Writer, quests []domain.Quest) error {
	if jsonOutput {
		return printJSON(out, quests)
	}
	if len(quests) == 0 {
		fmt.Fprintln(out, "No quests.")
		return nil
	}

	w := newTable(out)
	fmt.Fprintln(w, "ID\tTYPE\tTITLE\tPROGRESS\tSTATUS\tREWARD\tEXPIRES")
	for _, q := range quests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\t%d XP %d coins\t%s\n",
			q.ID, q.Type, q.Title, q.Progress, q.Target, q.Status,
			q.XPReward, q.CoinReward,
			q.ExpiresAt.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}
