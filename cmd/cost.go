package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Yates-Labs/saga/internal/narrative"
	"github.com/Yates-Labs/saga/internal/usage"
)

var (
	costProvider string
	costTier     string
	costInput    int
	costOutput   int
	costImages   int
	costPremium  int
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Estimate the cost of a number of tokens and images",
	Long: `Estimate the dollar cost of the given usage with a provider's price table.

Without --provider every provider is shown.

Examples:
  saga cost --input 20000 --output 8000 --images 10
  saga cost --provider openai --tier elevated --images 5 --premium 5`,
	Args: cobra.NoArgs,
	RunE: runCost,
}

func init() {
	rootCmd.AddCommand(costCmd)
	costCmd.Flags().StringVar(&costProvider, "provider", "", "Provider: gemini, openai or claude")
	costCmd.Flags().StringVar(&costTier, "tier", "base", "Tier: base or elevated")
	costCmd.Flags().IntVar(&costInput, "input", 0, "Input tokens")
	costCmd.Flags().IntVar(&costOutput, "output", 0, "Output tokens")
	costCmd.Flags().IntVar(&costImages, "images", 0, "Generated images")
	costCmd.Flags().IntVar(&costPremium, "premium", 0, "Premium (high resolution) images")
}

func runCost(cmd *cobra.Command, args []string) error {
	tier, err := usage.ParseTier(costTier)
	if err != nil {
		return err
	}

	providers := narrative.Providers
	if costProvider != "" {
		p, err := narrative.ParseProvider(costProvider)
		if err != nil {
			return err
		}
		providers = []narrative.Provider{p}
	}

	d := current.dispatcher()
	t := newTable(
		column{title: "PROVIDER", width: 10},
		column{title: "IN $/M", width: 9, right: true},
		column{title: "OUT $/M", width: 9, right: true},
		column{title: "$/IMAGE", width: 9, right: true},
		column{title: "ESTIMATE", width: 12, right: true},
	)
	for _, p := range providers {
		r := usage.Rates(p, tier)
		total := d.CalculateEstimatedCost(costInput, costOutput, costImages, costPremium, p, tier)
		t.add(
			[]lipgloss.Style{accentStyle, textStyle, textStyle, textStyle, numberStyle},
			string(p),
			fmt.Sprintf("%.2f", r.Input*1_000_000),
			fmt.Sprintf("%.2f", r.Output*1_000_000),
			fmt.Sprintf("%.3f", r.Image),
			fmt.Sprintf("$%.4f", total),
		)
	}

	fmt.Println(t)
	fmt.Println()
	fmt.Println(summaryStyle.Render(fmt.Sprintf("%s tier: %d input tokens, %d output tokens, %d images (%d premium)",
		tier, costInput, costOutput, costImages, costPremium)))
	return nil
}
