package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rahul/homebot/internal/cleaning"
	"github.com/spf13/cobra"
)

var (
	accentColor = lipgloss.Color("#5FAFAF")
	mutedColor  = lipgloss.Color("#6C6C6C")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	phaseStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
	mutedStyle = lipgloss.NewStyle().Foreground(mutedColor)
	deepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AF875F"))
)

var (
	flowMode    string
	flowZones   []string
	catalogPath string
)

var flowCmd = &cobra.Command{
	Use:   "flow",
	Short: "Preview the task flow for a zone selection",
	Example: `  homebot flow --zones kitchen,bath
  homebot flow --mode deep --zones bedroom`,
	RunE: runFlow,
}

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "List the zones of the cleaning catalog",
	RunE:  runZones,
}

func init() {
	flowCmd.Flags().StringVarP(&flowMode, "mode", "m", string(cleaning.ModeMaintenance), "cleaning mode: maintenance or deep")
	flowCmd.Flags().StringSliceVarP(&flowZones, "zones", "z", nil, "zones in cleaning order")
	for _, c := range []*cobra.Command{flowCmd, zonesCmd} {
		c.Flags().StringVar(&catalogPath, "catalog", "", "YAML catalog to use instead of the built-in one")
	}
}

func loadCatalog(path string) (*cleaning.Catalog, error) {
	if path == "" {
		return cleaning.DefaultCatalog()
	}
	return cleaning.LoadCatalogFile(path)
}

func runFlow(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}
	mode, err := cleaning.ParseMode(flowMode)
	if err != nil {
		return err
	}
	flow, err := cleaning.Compile(catalog, mode, flowZones)
	if err != nil {
		return fmt.Errorf("failed to compile flow: %w", err)
	}
	renderFlow(cmd.OutOrStdout(), catalog, mode, flow)
	return nil
}

func runZones(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, z := range catalog.Zones() {
		floors := ""
		if z.Floors {
			floors = mutedStyle.Render(" (floors)")
		}
		fmt.Fprintf(out, "%-10s %s%s\n", z.ID, z.Label, floors)
	}
	return nil
}

func renderFlow(w io.Writer, catalog *cleaning.Catalog, mode cleaning.Mode, flow cleaning.Flow) {
	est := flow.EstimatedDuration().Round(time.Minute)
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s clean: %d tasks, about %s", strings.ToUpper(string(mode[:1]))+string(mode[1:]), flow.TotalTasks(), est)))

	n := 0
	for _, p := range flow.Phases {
		fmt.Fprintln(w, phaseStyle.Render(phaseTitle(catalog, p)))
		for _, t := range p.Tasks {
			n++
			line := fmt.Sprintf("%3d. %s %s", n, t.Label, mutedStyle.Render(fmt.Sprintf("~%dm", (t.EstimatedSeconds+59)/60)))
			if t.RequiresDeepMode {
				line += " " + deepStyle.Render("deep")
			}
			fmt.Fprintln(w, line)
		}
	}
}

func phaseTitle(catalog *cleaning.Catalog, p cleaning.Phase) string {
	switch p.Kind {
	case cleaning.PhasePrep:
		return "Prep"
	case cleaning.PhaseGlobalBase:
		return "Whole home"
	case cleaning.PhaseZone:
		if z, ok := catalog.Zone(p.ZoneID); ok {
			return z.Label
		}
		return p.ZoneID
	case cleaning.PhaseFloors:
		return "Floors"
	case cleaning.PhaseFinish:
		return "Finish"
	}
	return string(p.Kind)
}
