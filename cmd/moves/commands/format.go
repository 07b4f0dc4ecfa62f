package commands

import (
	"fmt"
	"strings"

	"github.com/wonny/moves/backend/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// every command prints through these so output stays uniform
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a titled banner
func PrintHeader(title string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	printRow(columns, widths)

	total := 0
	for i, w := range widths {
		total += w
		if i < len(widths)-1 {
			total += 2
		}
	}
	fmt.Println(strings.Repeat("─", total))
}

func printRow(cells []string, widths []int) {
	for i, c := range cells {
		fmt.Printf("%-*s", widths[i], c)
		if i < len(cells)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

var outcomeWidths = []int{8, 8, 7, 11, 6, 6, 40}

// PrintOutcomes prints one row per evaluated (thesis, symbol) pair.
func PrintOutcomes(outcomes []contracts.SignalOutcome) {
	PrintTableHeader([]string{"THESIS", "SYMBOL", "ACTION", "RESULT", "CONF", "SIZE", "DETAIL"}, outcomeWidths)
	for _, o := range outcomes {
		detail := o.Detail
		if o.Suppressed() {
			detail = o.Gate + ": " + o.Detail
		} else if o.SignalID > 0 {
			detail = fmt.Sprintf("signal #%d", o.SignalID)
		}
		printRow([]string{
			fmt.Sprintf("#%d", o.ThesisID),
			o.Symbol,
			string(o.Action),
			string(o.Result),
			fmt.Sprintf("%.2f", o.Confidence),
			fmt.Sprintf("%.1f%%", o.SizePct*100),
			truncate(detail, 60),
		}, outcomeWidths)
	}
}

var signalWidths = []int{6, 8, 7, 8, 6, 6, 10, 16}

// PrintSignals prints the review queue.
func PrintSignals(list []*contracts.Signal) {
	PrintTableHeader([]string{"ID", "SYMBOL", "ACTION", "THESIS", "CONF", "SIZE", "STATUS", "UPDATED"}, signalWidths)
	for _, s := range list {
		printRow([]string{
			fmt.Sprintf("#%d", s.ID),
			s.Symbol,
			string(s.Action),
			fmt.Sprintf("#%d", s.ThesisID),
			fmt.Sprintf("%.2f", s.Confidence),
			fmt.Sprintf("%.1f%%", s.SizePct*100),
			string(s.Status),
			s.UpdatedAt.Format("01-02 15:04:05"),
		}, signalWidths)
	}
}

var whatIfWidths = []int{6, 8, 7, 10, 10, 10, 9}

// PrintWhatIfs prints passed signals with their hypothetical result.
func PrintWhatIfs(list []*contracts.WhatIf) {
	PrintTableHeader([]string{"SIGNAL", "SYMBOL", "ACTION", "DECISION", "AT PASS", "NOW", "P&L"}, whatIfWidths)
	for _, w := range list {
		now, pnl := "-", "-"
		if w.Priced() {
			now = fmt.Sprintf("%.2f", *w.CurrentPrice)
			pnl = fmt.Sprintf("%+.1f%%", *w.HypotheticalPnLPct*100)
		}
		printRow([]string{
			fmt.Sprintf("#%d", w.SignalID),
			w.Symbol,
			string(w.Action),
			string(w.Decision),
			fmt.Sprintf("%.2f", w.PriceAtPass),
			now,
			pnl,
		}, whatIfWidths)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
