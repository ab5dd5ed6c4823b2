package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"sight/internal/app"
	"sight/internal/color"
	"sight/internal/config"
	"sight/internal/services"
	"sight/pkg/logging"
)

// maxColumnWidth bounds every table column; longer cells are truncated.
const maxColumnWidth = 48

func newDescribeCmd() *cobra.Command {
	var copyTable bool
	cmd := &cobra.Command{
		Use:   "describe <app.yaml>",
		Short: "Show the services of an application definition",
		Long: `Builds the application without starting it and prints a table with one
row per service: its type, the worker it runs on, whether it can start
right away or waits for objects published by other services (DEFERRED),
and the objects bound to its keys.

With --copy the plain table is also copied to the clipboard.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := config.LoadAppDefinition(args[0])
			if err != nil {
				return err
			}
			logging.InitForCLI(logging.LevelWarn, os.Stderr)
			color.Initialize(lipgloss.HasDarkBackground())

			statuses, err := buildStatuses(cmd.Context(), def)
			if err != nil {
				return err
			}
			rows := describeRows(def, statuses)
			fmt.Fprintln(cmd.OutOrStdout(), color.HeaderStyle.Render("Application "+def.Name))
			fmt.Fprint(cmd.OutOrStdout(), renderTable(rows, true))

			if copyTable {
				if err := clipboard.WriteAll(renderTable(rows, false)); err != nil {
					return fmt.Errorf("failed to copy table: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), color.MutedStyle.Render("Table copied to clipboard"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&copyTable, "copy", false, "Copy the table to the clipboard")
	return cmd
}

// Start readiness shown in the STATUS column.
const (
	statusReady    = "READY"
	statusDeferred = "DEFERRED"
)

var describeHeader = []string{"SERVICE", "TYPE", "WORKER", "STATUS", "OBJECTS"}

// buildStatuses builds def and tears it down again, reporting the objects
// each service is missing before anything runs.
func buildStatuses(ctx context.Context, def *config.AppDefinition) (map[string]app.ServiceStatus, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m := app.NewManager(def, services.NewFactory())
	if err := m.Build(); err != nil {
		return nil, err
	}
	statuses := make(map[string]app.ServiceStatus)
	for _, st := range m.Status() {
		statuses[st.ID] = st
	}
	return statuses, m.Stop(ctx)
}

func describeRows(def *config.AppDefinition, statuses map[string]app.ServiceStatus) [][]string {
	rows := make([][]string, 0, len(def.Services))
	for _, sd := range def.Services {
		worker := sd.Worker
		if worker == "" {
			worker = "-"
		}
		status := statusReady
		if len(statuses[sd.ID].Missing) > 0 {
			status = statusDeferred
		}
		rows = append(rows, []string{sd.ID, sd.Type, worker, status, describeBindings(sd)})
	}
	return rows
}

func describeBindings(sd config.ServiceDefinition) string {
	if len(sd.Objects) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(sd.Objects))
	for _, b := range sd.Objects {
		key := b.Key
		if b.Index != nil {
			key = fmt.Sprintf("%s#%d", b.Key, *b.Index)
		}
		part := fmt.Sprintf("%s=%s(%s)", key, b.ID, b.Access)
		if b.Optional {
			part += "?"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " ")
}

// renderTable lays out rows in columns padded to their display width.
func renderTable(rows [][]string, styled bool) string {
	widths := make([]int, len(describeHeader))
	for i, h := range describeHeader {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], min(runewidth.StringWidth(cell), maxColumnWidth))
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style func(int, string) string) {
		for i, cell := range cells {
			if runewidth.StringWidth(cell) > maxColumnWidth {
				cell = runewidth.Truncate(cell, maxColumnWidth, "…")
			}
			cell = runewidth.FillRight(cell, widths[i])
			if styled {
				cell = style(i, cell)
			}
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
		}
		b.WriteString("\n")
	}

	writeRow(describeHeader, func(_ int, s string) string { return color.HeaderStyle.Render(s) })
	for _, row := range rows {
		writeRow(row, func(i int, s string) string {
			switch i {
			case 0:
				return s
			case 3:
				return color.StatusStyle(strings.TrimSpace(s)).Render(s)
			}
			return color.MutedStyle.Render(s)
		})
	}
	return b.String()
}
