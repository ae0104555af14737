package cmd

import (
	"fmt"
	"linksnap/internal/backup"
	"linksnap/internal/engine"
	"linksnap/internal/logger"
	"linksnap/internal/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run [source] [backup]",
	Short: "Back up a source tree into a backup root",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()
		source, backupRoot := args[0], args[1]

		logger.Log.Info("starting run",
			zap.String("source", source),
			zap.String("backup", backupRoot),
			zap.Bool("dry_run", dryRun))

		runner := backup.NewRunner(cfg, pickEngine(), nil, repository.NewRunRepository())
		run, err := runner.Run(backup.Options{
			Source: source,
			Backup: backupRoot,
			DryRun: dryRun,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d transferred, %d linked, %d failed\n",
			run.Status, run.Transferred, run.Linked, run.Failed)
		return nil
	},
}

func pickEngine() engine.Engine {
	if cfg.Engine == "rsync" {
		return engine.NewRsync()
	}
	return engine.NewNative()
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan the run without changing anything")
	rootCmd.AddCommand(runCmd)
}
