package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/models"
)

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.ErrImageNotFound.WithCause(err).WithContext("index", s)
	}
	return i, nil
}

func (r *root) imageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Attach, remove and save note images",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "attach <id> <file>...",
		Short: "Compress image files and attach them to a note",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withNote(cmd, args, func(a *app, note models.Note) error {
				for _, path := range args[1:] {
					if err := a.svc.AttachImageFile(cmd.Context(), note.ID, path); err != nil {
						return err
					}
					fmt.Fprintf(r.out, "Attached %s to note %s\n", path, note.ID)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <id> <index>",
		Short: "Remove an image from a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return r.withNote(cmd, args, func(a *app, note models.Note) error {
				if err := a.svc.RemoveImage(note.ID, index); err != nil {
					return err
				}
				fmt.Fprintf(r.out, "Removed image %d from note %s\n", index, note.ID)
				return nil
			})
		},
	})

	var dir string
	save := &cobra.Command{
		Use:   "save <id> <index>",
		Short: "Write an image to a JPEG file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return r.withNote(cmd, args, func(a *app, note models.Note) error {
				path, err := a.svc.SaveImage(dir, note.ID, index)
				if err != nil {
					return err
				}
				fmt.Fprintln(r.out, path)
				return nil
			})
		},
	}
	save.Flags().StringVarP(&dir, "dir", "d", ".", "Output directory")
	cmd.AddCommand(save)

	return cmd
}
