package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Yates-Labs/saga/internal/session"
)

var savesCmd = &cobra.Command{
	Use:   "saves",
	Short: "List, delete and export saved games",
	Long: `Manage saved games. Every game is saved after each turn.

Slot ids may be abbreviated to any unique prefix.

Examples:
  saga saves list
  saga saves delete 3f2a
  saga saves export 3f2a story.json`,
}

var savesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved games, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runSavesList,
}

var savesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved game",
	Args:  cobra.ExactArgs(1),
	RunE:  runSavesDelete,
}

var savesExportCmd = &cobra.Command{
	Use:   "export <id> [file]",
	Short: "Export a saved game as JSON (stdout when no file is given)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSavesExport,
}

func init() {
	rootCmd.AddCommand(savesCmd)
	savesCmd.AddCommand(savesListCmd, savesDeleteCmd, savesExportCmd)
}

func runSavesList(cmd *cobra.Command, args []string) error {
	slots, err := current.saves.List()
	if err != nil {
		return err
	}
	if len(slots) == 0 {
		fmt.Println("No saved games")
		return nil
	}

	fmt.Println(slotTable(slots))
	fmt.Println()
	fmt.Println(summaryStyle.Render(fmt.Sprintf("Total: %d saved games", len(slots))))
	return nil
}

func slotTable(slots []session.Slot) *table {
	t := newTable(
		column{title: "ID", width: 10},
		column{title: "NAME", width: 22},
		column{title: "GENRE", width: 18},
		column{title: "PROVIDER", width: 10},
		column{title: "TURNS", width: 7, right: true},
		column{title: "COST", width: 10, right: true},
		column{title: "UPDATED", width: 16},
	)
	for _, s := range slots {
		t.add(
			[]lipgloss.Style{accentStyle, textStyle, textStyle, accentStyle, numberStyle, numberStyle, textStyle},
			shortID(s.ID),
			s.Name,
			s.Genre,
			string(s.Provider),
			fmt.Sprintf("%d", len(s.History)),
			fmt.Sprintf("$%.4f", s.UsageStats.EstimatedCost),
			s.LastUpdated.Local().Format("Jan 02, 15:04"),
		)
	}
	return t
}

func runSavesDelete(cmd *cobra.Command, args []string) error {
	slot, err := findSlot(args[0])
	if err != nil {
		return err
	}
	if err := current.saves.Delete(slot.ID); err != nil {
		return err
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Deleted %q", slot.Name)))
	return nil
}

func runSavesExport(cmd *cobra.Command, args []string) error {
	slot, err := findSlot(args[0])
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(slot, "", "  ")
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if len(args) < 2 {
		fmt.Println(string(data))
		return nil
	}

	if err := os.WriteFile(args[1], data, 0o644); err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	fmt.Printf("✓ Exported %q to %s\n", slot.Name, args[1])
	return nil
}

// findSlot resolves an id or unique id prefix.
func findSlot(prefix string) (session.Slot, error) {
	slots, err := current.saves.List()
	if err != nil {
		return session.Slot{}, err
	}
	return matchSlot(slots, prefix)
}

func matchSlot(slots []session.Slot, prefix string) (session.Slot, error) {
	var matches []session.Slot
	for _, s := range slots {
		if s.ID == prefix {
			return s, nil
		}
		if strings.HasPrefix(s.ID, prefix) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return session.Slot{}, fmt.Errorf("%w: %s", session.ErrSlotNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return session.Slot{}, fmt.Errorf("id prefix %q matches %d saves", prefix, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
