package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nidx/nidx/internal/shard"
)

var shardsDir string

var rootCmd = &cobra.Command{
	Use:   "nidxctl",
	Short: "Inspect and search nidx shards stored on disk",
	Long: `nidxctl is a development tool for driving a shard directly off its
on-disk state: create one, feed it segments, run a merge pass, and issue
searches against it. It talks to the same internal/shard.Manager a search
server would use, with no RPC layer in between.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&shardsDir, "dir", "./nidx-data", "root directory holding one subdirectory per shard")
	rootCmd.AddCommand(shardCmd, ingestCmd, mergeCmd, searchCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func openManager() *shard.Manager {
	return shard.NewManager(shardsDir)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
