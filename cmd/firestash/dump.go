package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/firestash/pkg/engine"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Run a script against a fresh engine and print its resulting store",
	Long: `dump boots a fresh, unpersisted engine, optionally replays a scripted
command file against it, and prints the resulting document tree as JSON
(the same wire shape pkg/store.Snapshot produces) to stdout or --out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scriptPath, _ := cmd.Flags().GetString("script")
		outPath, _ := cmd.Flags().GetString("out")

		e := engine.New(engine.DefaultConfig(), nil, nil)
		defer e.Close()

		if scriptPath != "" {
			f, err := os.Open(scriptPath)
			if err != nil {
				return fmt.Errorf("failed to open script: %w", err)
			}
			cmds, err := parseScript(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("failed to parse script: %w", err)
			}
			if err := runScript(e, cmds); err != nil {
				return fmt.Errorf("script failed: %w", err)
			}
		}

		out, err := json.MarshalIndent(e.Snapshot(), "", "  ")
		if err != nil {
			return err
		}
		if outPath == "" || outPath == "-" {
			fmt.Println(string(out))
			return nil
		}
		return os.WriteFile(outPath, out, 0o644)
	},
}

func init() {
	dumpCmd.Flags().String("script", "", "Path to a scripted command file to replay before dumping")
	dumpCmd.Flags().String("out", "", "Path to write the JSON dump (default stdout)")
}
