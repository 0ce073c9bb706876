package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"prostateview/pkg/dataset"
)

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "List the subjects found in the data directory",
	Long: `List every subject ID with an image volume under the data directory and
show whether its mask volume was found too.`,
	Args: cobra.NoArgs,
	RunE: runSubjects,
}

func runSubjects(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ids, err := dataset.DiscoverSubjects(cfg.Dataset.DataDir, cfg.Dataset.ImagePattern)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, id := range ids {
		subjects, err := dataset.ResolveSubjects(cfg.Dataset.DataDir, []string{id}, cfg.Dataset.ImagePattern, cfg.Dataset.MaskPattern)
		switch {
		case err == nil:
			fmt.Fprintf(out, "%s\t%s\t%s\n", id, subjects[0].ImagePath, subjects[0].MaskPath)
		case errors.Is(err, dataset.ErrNotFound):
			fmt.Fprintf(out, "%s\tmissing mask\n", id)
		default:
			return err
		}
	}
	fmt.Fprintf(out, "%d subjects under %s\n", len(ids), cfg.Dataset.DataDir)
	return nil
}
