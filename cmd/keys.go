package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Yates-Labs/saga/internal/credential"
	"github.com/Yates-Labs/saga/internal/narrative"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage provider API keys",
	Long: `Store, clear and inspect the API keys used for each provider.

Stored keys take precedence over environment variables.

Examples:
  saga keys set openai sk-...
  saga keys set gemini            (prompts for the key)
  saga keys clear claude
  saga keys clear
  saga keys status`,
}

var keysSetCmd = &cobra.Command{
	Use:   "set <provider> [key]",
	Short: "Store the API key for a provider",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runKeysSet,
}

var keysClearCmd = &cobra.Command{
	Use:   "clear [provider]",
	Short: "Remove the stored key for one provider, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKeysClear,
}

var keysStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which providers have a key configured",
	Args:  cobra.NoArgs,
	RunE:  runKeysStatus,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysSetCmd, keysClearCmd, keysStatusCmd)
}

func runKeysSet(cmd *cobra.Command, args []string) error {
	provider, err := narrative.ParseProvider(args[0])
	if err != nil {
		return err
	}

	key := ""
	if len(args) == 2 {
		key = args[1]
	} else {
		key, err = promptLine(bufio.NewReader(os.Stdin), fmt.Sprintf("Enter %s API key: ", provider))
		if err != nil {
			return err
		}
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("no key given; use 'saga keys clear %s' to remove a key", provider)
	}

	if err := current.keys.Set(provider, key); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Saved %s key", provider)))
	return nil
}

func runKeysClear(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		if err := current.keys.ClearAll(); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("✓ Cleared all stored keys"))
		return nil
	}

	provider, err := narrative.ParseProvider(args[0])
	if err != nil {
		return err
	}
	if err := current.keys.Set(provider, ""); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Cleared %s key", provider)))
	return nil
}

func runKeysStatus(cmd *cobra.Command, args []string) error {
	t := newTable(
		column{title: "PROVIDER", width: 10},
		column{title: "STORED", width: 14},
		column{title: "ENVIRONMENT", width: 28},
	)

	var env credential.EnvSource
	for _, p := range narrative.Providers {
		stored := "-"
		if k := current.keys.Get(p); k != "" {
			stored = maskKey(k)
		}
		envStatus := "-"
		if env.Get(p) != "" {
			envStatus = "set (" + strings.Join(credential.EnvVars(p), " / ") + ")"
		}
		t.add([]lipgloss.Style{accentStyle, numberStyle, textStyle}, string(p), stored, envStatus)
	}

	fmt.Println(t)
	return nil
}

// maskKey shows only the last four characters of a secret.
func maskKey(k string) string {
	if len(k) <= 4 {
		return "****"
	}
	return "****" + k[len(k)-4:]
}

// promptLine prints prompt and reads one trimmed line.
func promptLine(r *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
