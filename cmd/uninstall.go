package cmd

import (
	"fmt"
	"linksnap/internal/autostart"

	"github.com/spf13/cobra"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the scheduled backup run",
	RunE: func(cmd *cobra.Command, args []string) error {
		sched := autostart.New()
		if err := sched.Uninstall(); err != nil {
			return err
		}

		fmt.Println("scheduled backup run removed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
