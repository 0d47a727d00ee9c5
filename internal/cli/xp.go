package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ghostline/ghostxp/internal/domain"
)

func init() {
	awardCmd.Flags().StringVar(&awardReason, "reason", "manual award", "Ledger reason")
	awardCmd.Flags().StringVar(&xpCategory, "category", string(domain.CatSystem), "XP category")
	awardCmd.Flags().Int64Var(&awardCoins, "coins", 0, "Coins granted with the XP")
	spendCmd.Flags().StringVar(&spendReason, "reason", "manual spend", "Ledger reason")
	rootCmd.AddCommand(awardCmd, spendCmd)
}

var (
	awardReason string
	spendReason string
	xpCategory  string
	awardCoins  int64
)

var awardCmd = &cobra.Command{
	Use:   "award ACCOUNT AMOUNT",
	Short: "Award XP to an account",
	Long: `Award XP through the ledger. Level and evolution stage are recomputed in
the same transaction; crossing a stage threshold pays its evolution bonus.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[1], "amount")
		if err != nil {
			return err
		}
		cat, err := domain.ParseXPCategory(xpCategory)
		if err != nil {
			return err
		}
		if awardCoins < 0 {
			return fmt.Errorf("coins must not be negative")
		}

		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		res, err := d.Engine.ApplyReward(cmd.Context(), args[0],
			domain.RewardBundle{XP: amount, Coins: awardCoins}, awardReason, cat)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "+%d XP → %d total (level %d)\n", amount, res.NewTotal, res.NewLevel)
		if res.LeveledUp {
			fmt.Fprintf(out, "level up! now level %d\n", res.NewLevel)
		}
		if res.Evolved {
			fmt.Fprintf(out, "evolved into %s\n", res.Profile.EvolutionForm)
		}
		return nil
	},
}

var spendCmd = &cobra.Command{
	Use:   "spend ACCOUNT AMOUNT",
	Short: "Spend XP from an account",
	Long:  `Spend XP. The total never drops below the current evolution stage threshold.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseAmount(args[1], "amount")
		if err != nil {
			return err
		}

		d, err := openDaemon(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		res, err := d.Engine.SpendXP(cmd.Context(), args[0], amount, spendReason)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "-%d XP → %d total (level %d)\n", amount, res.NewTotal, res.Level)
		return nil
	},
}
