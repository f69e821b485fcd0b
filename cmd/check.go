package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/persist"
)

var (
	checkJSON      bool
	checkStaleDays int64
	checkStrict    bool
)

var checkCmd = &cobra.Command{
	Use:   "check <document>",
	Short: "Analyze structure: depth, floating trees, staleness, invariant violations, health score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := OpenBackend()
		if err != nil {
			return err
		}
		defer done()

		ctx := cmd.Context()
		docID, err := ResolveDocument(ctx, store, args[0])
		if err != nil {
			return err
		}
		// The stored list as is; opening a workspace would normalize it.
		doc, err := persist.LoadDocument(ctx, store, docID, cfg.UserID)
		if err != nil {
			return err
		}

		report := graph.Analyze(doc.Nodes, &graph.AnalyzerConfig{StaleDays: checkStaleDays}, time.Now().UnixMilli())
		if checkJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			printReport(doc.Title, report)
		}
		if checkStrict && len(report.Violations) > 0 {
			return fmt.Errorf("%d invariant violations", len(report.Violations))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output as JSON")
	checkCmd.Flags().Int64Var(&checkStaleDays, "stale-days", graph.DefaultConfig().StaleDays, "Days since update to consider a node stale")
	checkCmd.Flags().BoolVar(&checkStrict, "strict", false, "Exit non-zero when invariants are violated")
	rootCmd.AddCommand(checkCmd)
}

func printReport(title string, report *graph.AnalysisReport) {
	// Health bar
	barLen := min(int(report.HealthScore*20), 20)
	bar := strings.Repeat("█", barLen) + strings.Repeat("░", 20-barLen)
	fmt.Printf("\n  %s\n", title)
	fmt.Printf("  Diagram Health: %.0f%%  [%s]\n", report.HealthScore*100, bar)
	fmt.Printf("  breakdown: connectivity=%.2f components=%.2f staleness=%.2f integrity=%.2f\n\n",
		report.HealthBreakdown.Connectivity,
		report.HealthBreakdown.Components,
		report.HealthBreakdown.Staleness,
		report.HealthBreakdown.Integrity)

	st := report.Stats
	fmt.Println("  STRUCTURE")
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Nodes: %d  Depth: %d  Subtrees: %d  Root tree: %d\n",
		st.TotalNodes, st.MaxDepth, st.Components, st.RootTreeSize)
	fmt.Printf("  Pinned: %d  Shared: %d  Highlighted: %d\n", st.ManualCount, st.SharedCount, st.HighlightCount)

	fmt.Println("\n  Nodes per level:")
	for _, b := range st.Levels {
		fmt.Printf("    %3d: %4d  %s\n", b.Level, b.Count, strings.Repeat("=", min(b.Count, 40)))
	}

	if len(st.Floating) > 0 {
		fmt.Printf("\n  %d floating subtrees (not connected to the root):\n", len(st.Floating))
		limit := min(len(st.Floating), 10)
		for _, f := range st.Floating[:limit] {
			fmt.Printf("    %s %d nodes  %s\n", truncID(f.ID), f.Size, truncTitle(f.Label, 40))
		}
		if len(st.Floating) > limit {
			fmt.Printf("    ... and %d more\n", len(st.Floating)-limit)
		}
	}

	// Staleness
	s := report.Staleness
	if s.StaleNodeCount > 0 || s.DriftedCount > 0 {
		fmt.Println("\n  STALENESS")
		fmt.Println("  ────────────────────────────────────────")
		if s.StaleNodeCount > 0 {
			fmt.Printf("  %d stale nodes (old but with recent edits below):\n", s.StaleNodeCount)
			for _, n := range s.StaleNodes[:min(len(s.StaleNodes), 10)] {
				fmt.Printf("    %s %dd old, %d recent edits  %s\n",
					truncID(n.ID), n.DaysSinceUpdate, n.RecentEdits, truncTitle(n.Label, 40))
			}
		}
		if s.DriftedCount > 0 {
			fmt.Printf("  %d drifted parents (child changed after parent):\n", s.DriftedCount)
			for _, d := range s.DriftedParents[:min(len(s.DriftedParents), 10)] {
				fmt.Printf("    %s -> %s (%dd drift)\n",
					truncTitle(d.ParentLabel, 25), truncTitle(d.ChildLabel, 25), d.DriftDays)
			}
		}
	}

	if len(report.Violations) > 0 {
		fmt.Println("\n  VIOLATIONS")
		fmt.Println("  ────────────────────────────────────────")
		for _, v := range report.Violations {
			fmt.Printf("    %s\n", v)
		}
	}
	fmt.Println()
}
