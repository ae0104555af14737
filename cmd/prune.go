package cmd

import (
	"fmt"
	"linksnap/internal/archive"
	"linksnap/internal/logger"
	"path/filepath"

	"github.com/spf13/cobra"
)

var pruneCmd = &cobra.Command{
	Use:   "prune [backup]",
	Short: "Clean a backup root's archive of false deletions and empty dirs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		archiveRoot := filepath.Join(args[0], cfg.ArchiveName)
		res := archive.NewPruner(cfg.ShadowName).Prune(archiveRoot)

		fmt.Printf("pruned: %d shadow trees, %d still-referenced files, %d empty dirs",
			res.Shadows, res.Linked, res.EmptyDirs)
		if res.Failures > 0 {
			fmt.Printf(", %d failures", res.Failures)
		}
		fmt.Println()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)
}
