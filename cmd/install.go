package cmd

import (
	"fmt"
	"linksnap/internal/autostart"
	"os"

	"github.com/spf13/cobra"
)

var installInterval string

var installCmd = &cobra.Command{
	Use:   "install [source] [backup]",
	Short: "Register a periodic backup run with the system scheduler",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		execPath, err := os.Executable()
		if err != nil {
			return fmt.Errorf("failed to get executable path: %w", err)
		}

		sched := autostart.New()
		if err := sched.Install(autostart.Schedule{
			ExecPath: execPath,
			Source:   args[0],
			Backup:   args[1],
			Interval: installInterval,
		}); err != nil {
			return err
		}

		fmt.Printf("backup run registered every %s\n", installInterval)
		return nil
	},
}

func init() {
	installCmd.Flags().StringVar(&installInterval, "interval", "1h", "time between runs")
	rootCmd.AddCommand(installCmd)
}
