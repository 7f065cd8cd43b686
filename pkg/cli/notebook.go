package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (r *root) notebookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notebook",
		Aliases: []string{"nb"},
		Short:   "Manage notebooks",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List notebooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd.Context())
			if err != nil {
				return err
			}
			counts := make(map[string]int)
			for _, n := range a.store.Notes() {
				if !n.Trash {
					counts[n.Notebook]++
				}
			}
			for _, nb := range a.store.Notebooks() {
				fmt.Fprintf(r.out, "%s (%d)\n", nb, counts[nb])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Add a notebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.svc.AddNotebook(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Added notebook %s\n", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a notebook. Its notes keep the notebook name.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.store.RemoveNotebook(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "Removed notebook %s\n", args[0])
			return nil
		},
	})

	return cmd
}
