package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/forecastrun/internal/packager"
)

// NewArchiveCmd creates the archive command group.
func NewArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "archive", Short: "Inspect and unpack batch archives"}
	cmd.AddCommand(newArchiveListCmd(), newArchiveExtractCmd())
	return cmd
}

func newArchiveExtractCmd() *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "extract <archive.zip>",
		Short: "Unpack the artifacts of an archive into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := packager.Extract(args[0], dest)
			if err != nil {
				return err
			}
			for _, path := range written {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "d", ".", "destination directory")
	return cmd
}

func newArchiveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "ls <archive.zip>...",
		Aliases: []string{"list"},
		Short:   "List the artifacts stored in one or more archives",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				names, err := packager.List(path)
				if err != nil {
					return err
				}
				if len(args) > 1 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", path)
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
			}
			return nil
		},
	}
}
