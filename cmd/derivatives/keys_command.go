package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-content-derivatives/pkg/runner"
)

func newKeysCommand() *cobra.Command {
	var (
		id      string
		version int
	)

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Print the object keys for an image id and assets version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return errors.New("--id is required")
			}
			if version < 1 {
				return fmt.Errorf("--version must be at least 1, got %d", version)
			}

			set := runner.Keys(id, version)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "original\t%s\n", set.Original)
			fmt.Fprintf(out, "web\t%s\n", set.Web)
			fmt.Fprintf(out, "thumb\t%s\n", set.Thumb)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Image id")
	cmd.Flags().IntVar(&version, "version", 0, "Assets version")
	return cmd
}
