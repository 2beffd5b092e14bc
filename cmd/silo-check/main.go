// Command silo-check inspects a persisted snapshot and verifies the ledger
// invariants every well-formed snapshot must hold.
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"silocore/internal/core"
	"silocore/pkg/domain"
)

const version = "0.1.0"

var (
	flagDriver     string
	flagSQLitePath string
	flagJSON       bool

	exitFunc = os.Exit
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitFunc(2)
	}
}

var rootCmd = &cobra.Command{
	Use:   "silo-check",
	Short: "silo-check verifies persisted spoilage-tracking snapshots",
	Long: `silo-check loads a snapshot from the configured storage backend and
verifies its structural invariants: batch ordering, positive quantities,
finite ages, and unique container identifiers.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDriver, "driver", "", "storage driver: memory|sqlite|postgres (default from SILOCORE_STORAGE_DRIVER)")
	rootCmd.PersistentFlags().StringVar(&flagSQLitePath, "sqlite-path", "", "sqlite database path (default from SILOCORE_SQLITE_PATH)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the silo-check version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify snapshot invariants",
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshot, err := loadSnapshot()
		if err != nil {
			return err
		}
		violations := verifySnapshot(snapshot)
		if flagJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(violations); err != nil {
				return err
			}
		} else {
			for _, v := range violations {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", v.ContainerID, v.Message)
			}
		}
		if len(violations) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d violation(s) found\n", len(violations))
			exitFunc(1)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d container(s), %d pooled\n", len(snapshot.Containers), len(snapshot.Pool))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print accumulated spoilage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshot, err := loadSnapshot()
		if err != nil {
			return err
		}
		if flagJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot.Statistics)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "total expired: %.2f\n", snapshot.Statistics.ExpiredTotal)
		for contentType, qty := range snapshot.Statistics.ExpiredByType {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %.2f\n", contentType, qty)
		}
		return nil
	},
}

func loadSnapshot() (domain.Snapshot, error) {
	if flagDriver != "" {
		if err := os.Setenv("SILOCORE_STORAGE_DRIVER", flagDriver); err != nil {
			return domain.Snapshot{}, err
		}
	}
	if flagSQLitePath != "" {
		if err := os.Setenv("SILOCORE_SQLITE_PATH", flagSQLitePath); err != nil {
			return domain.Snapshot{}, err
		}
	}
	store, err := core.OpenSnapshotStore()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = store.Close() }()
	snapshot, err := store.Load()
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return snapshot, nil
}

// Violation is one failed invariant in a persisted snapshot.
type Violation struct {
	ContainerID string `json:"container_id"`
	Message     string `json:"message"`
}

func verifySnapshot(snapshot domain.Snapshot) []Violation {
	var out []Violation
	seen := make(map[string]bool)
	check := func(c domain.Container) {
		if c.ID == "" {
			out = append(out, Violation{Message: "container without id"})
			return
		}
		if seen[c.ID] {
			out = append(out, Violation{ContainerID: c.ID, Message: "duplicate container id"})
		}
		seen[c.ID] = true
		if !domain.KnownFamily(c.Family) {
			out = append(out, Violation{ContainerID: c.ID, Message: fmt.Sprintf("unknown entity family %q", c.Family)})
		}
		for i, b := range c.Ledger {
			if b.Quantity <= 0 || math.IsNaN(b.Quantity) || math.IsInf(b.Quantity, 0) {
				out = append(out, Violation{ContainerID: c.ID, Message: fmt.Sprintf("batch %d: invalid quantity %v", i, b.Quantity)})
			}
			if b.Age < 0 || math.IsNaN(b.Age) || math.IsInf(b.Age, 0) {
				out = append(out, Violation{ContainerID: c.ID, Message: fmt.Sprintf("batch %d: invalid age %v", i, b.Age)})
			}
			// Oldest first: ages never increase along the ledger.
			if i > 0 && b.Age > c.Ledger[i-1].Age {
				out = append(out, Violation{ContainerID: c.ID, Message: fmt.Sprintf("batch %d: age ordering broken (%v after %v)", i, b.Age, c.Ledger[i-1].Age)})
			}
		}
	}
	for _, c := range snapshot.Containers {
		check(c)
	}
	for _, c := range snapshot.Pool {
		check(c)
	}
	if snapshot.Statistics.ExpiredTotal < 0 {
		out = append(out, Violation{Message: "negative expired total"})
	}
	for contentType, qty := range snapshot.Statistics.ExpiredByType {
		if qty < 0 {
			out = append(out, Violation{Message: fmt.Sprintf("negative expired quantity for %s", contentType)})
		}
	}
	return out
}
