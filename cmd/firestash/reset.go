package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/firestash/pkg/engine"
	"github.com/cuemby/firestash/pkg/store"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Empty a snapshot file's contents",
	Long: `reset loads the snapshot at --snapshot (if it exists), discards its
contents through an engine's Reset lifecycle operation, and writes the
now-empty snapshot back out — a scriptable way to clear local scratch
state between test runs without touching a live serve process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		snapPath, _ := cmd.Flags().GetString("snapshot")
		if snapPath == "" {
			return fmt.Errorf("--snapshot is required")
		}

		e := engine.New(engine.DefaultConfig(), nil, nil)
		defer e.Close()

		if data, err := os.ReadFile(snapPath); err == nil {
			var snap store.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return fmt.Errorf("failed to parse snapshot: %w", err)
			}
			e.Restore(snap)
		}

		e.Reset()

		out, err := json.MarshalIndent(e.Snapshot(), "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(snapPath, out, 0o644); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		fmt.Printf("reset %s\n", snapPath)
		return nil
	},
}

func init() {
	resetCmd.Flags().String("snapshot", "", "Path to the snapshot file to empty")
}
