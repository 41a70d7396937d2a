package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the API credentials work",
	Long: `Make a signed account request with the configured credentials and print
the wallet summary. Use it after setting BINANCE_API_KEY and
BINANCE_API_SECRET.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	if err := requireCredentials(); err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	acct, err := client.AccountSummary(cmd.Context(), cfg.Exchange.APIKey, cfg.Exchange.APISecret)
	if err != nil {
		return fmt.Errorf("verify credentials: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✓ Credentials are valid")
	fmt.Fprintf(out, "  Wallet balance:    %s\n", acct.TotalWalletBalance.StringFixed(2))
	fmt.Fprintf(out, "  Available balance: %s\n", acct.AvailableBalance.StringFixed(2))
	fmt.Fprintf(out, "  Unrealized PnL:    %s\n", acct.TotalUnrealizedProfit.StringFixed(2))
	fmt.Fprintf(out, "  Can trade:         %t\n", acct.CanTrade)
	return nil
}
