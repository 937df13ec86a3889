package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/gantryhq/gantry/pkg/cli/format"
	"github.com/gantryhq/gantry/pkg/deployer"
)

// InstanceTable renders deployed instances as a terminal table.
type InstanceTable struct {
	Headers       []string
	tableRenderer *pterm.TablePrinter
}

// NewInstanceTable creates a table with the default header style.
func NewInstanceTable() *InstanceTable {
	table := pterm.DefaultTable.WithHasHeader(true)
	headerStyle := pterm.NewStyle(pterm.FgCyan, pterm.Bold)
	table = table.WithHeaderStyle(headerStyle)

	return &InstanceTable{
		Headers:       []string{"NAME", "WORKLOAD", "IMAGE", "STATUS", "ALIASES", "AGE"},
		tableRenderer: table,
	}
}

// Render prints the instances, one row each.
func (t *InstanceTable) Render(states []*deployer.InstanceState) error {
	if len(states) == 0 {
		fmt.Println("No instances found")
		return nil
	}

	rows := [][]string{t.Headers}
	for _, state := range states {
		record := state.Record

		image := record.Image
		if len(image) > 60 {
			image = image[:57] + "..."
		}

		rows = append(rows, []string{
			record.Name,
			record.Workload,
			image,
			format.StatusLabel(string(state.Observed)),
			strings.Join(record.Aliases, ","),
			formatAge(record.CreatedAt),
		})
	}

	return t.tableRenderer.WithData(rows).Render()
}

// formatAge formats a time.Time as a human-readable age string
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}

	duration := time.Since(t)
	if duration < time.Minute {
		return "Just now"
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else if duration < 30*24*time.Hour {
		return fmt.Sprintf("%dd", int(duration.Hours()/24))
	} else if duration < 365*24*time.Hour {
		return fmt.Sprintf("%dmo", int(duration.Hours()/24/30))
	}
	return fmt.Sprintf("%dy", int(duration.Hours()/24/365))
}
