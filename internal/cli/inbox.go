package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	inboxCmd.Flags().IntVar(&inboxLimit, "limit", 20, "Maximum number of notifications")
	badgesCmd.Flags().BoolVar(&badgesCheck, "check", false, "Unlock every badge the account now qualifies for")
	rootCmd.AddCommand(inboxCmd, badgesCmd)
}

var (
	inboxLimit  int
	badgesCheck bool
)

var inboxCmd = &cobra.Command{
	Use:   "inbox ACCOUNT",
	Short: "List an account's notifications, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		notes, err := d.Inbox.Inbox(cmd.Context(), args[0], inboxLimit)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), notes)
		}
		if len(notes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Inbox is empty.")
			return nil
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "WHEN\tTYPE\tTITLE\tSHOWN")
		for _, n := range notes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", n.CreatedAt.Format("2006-01-02 15:04"), n.Type, n.Title, n.Shown)
		}
		return w.Flush()
	},
}

var badgesCmd = &cobra.Command{
	Use:   "badges ACCOUNT",
	Short: "List unlocked badges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := cmd.Context()
		if badgesCheck {
			unlocked, err := d.Engine.CheckBadges(ctx, args[0])
			if err != nil {
				return err
			}
			if !jsonOutput {
				for _, u := range unlocked {
					fmt.Fprintf(cmd.OutOrStdout(), "unlocked %s %s (+%d XP)\n", u.Badge.Icon, u.Badge.Name, u.Badge.RewardXP)
				}
			}
		}

		badges, err := d.Engine.Badges(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), badges)
		}
		if len(badges) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No badges yet.")
			return nil
		}

		w := newTable(cmd.OutOrStdout())
		fmt.Fprintln(w, "BADGE\tUNLOCKED")
		for _, b := range badges {
			fmt.Fprintf(w, "%s\t%s\n", b.Key, b.UnlockedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}
