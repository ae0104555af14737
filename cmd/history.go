package cmd

import (
	"fmt"
	"linksnap/internal/model"
	"linksnap/internal/repository"

	"github.com/spf13/cobra"
)

var historyN int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View past backup runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo := repository.NewRunRepository()

		runs, err := repo.GetRecent(historyN)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("no runs yet")
			return nil
		}

		for _, r := range runs {
			status := "✓"
			if r.Status == model.RunStatusFailed {
				status = "✗"
			} else if r.Status == model.RunStatusPartial {
				status = "!"
			}

			tag := ""
			if r.DryRun {
				tag = " (dry run)"
			}

			fmt.Printf("%s [%s] %-7s %s → %s  %d transferred, %d linked, %d failed%s\n",
				status,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Status,
				r.Source,
				r.Backup,
				r.Transferred,
				r.Linked,
				r.Failed,
				tag,
			)
		}

		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyN, "n", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}
