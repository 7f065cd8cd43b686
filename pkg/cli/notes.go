package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/filter"
	"tempnotes/pkg/models"
	"tempnotes/pkg/types"
)

func parseID(s string) (models.NoteID, error) {
	id, err := models.ParseNoteID(s)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrTypeValidation, "INVALID_NOTE_ID", "invalid note id").
			WithUserMessage(fmt.Sprintf("%q is not a note id", s))
	}
	return id, nil
}

// withNote opens the store and resolves the note named by args[0]
func (r *root) withNote(cmd *cobra.Command, args []string, fn func(a *app, note models.Note) error) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	a, err := r.open(cmd.Context())
	if err != nil {
		return err
	}
	note, err := a.svc.GetNote(id)
	if err != nil {
		return err
	}
	return fn(a, note)
}

func (r *root) newCmd() *cobra.Command {
	var view string
	var title, content, tags, language string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a note",
		Long:  "Create a note. It is filed under --view when that names a notebook.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd.Context())
			if err != nil {
				return err
			}
			note, err := a.svc.CreateNote(view)
			if err != nil {
				return err
			}

			fields := note.Fields()
			fields.Title = title
			fields.Content = content
			fields.Tags = models.ParseTags(tags)
			if language != "" {
				fields.Language = language
			}
			if fields.Title != "" || fields.Content != "" || len(fields.Tags) > 0 || language != "" {
				if err := a.svc.UpdateNote(note.ID, fields); err != nil {
					return err
				}
			}

			fmt.Fprintf(r.out, "Created note %s in %s\n", note.ID, note.Notebook)
			return nil
		},
	}

	cmd.Flags().StringVar(&view, "view", models.ViewAll, "Active view or notebook")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Note title")
	cmd.Flags().StringVarP(&content, "content", "c", "", "Note content")
	cmd.Flags().StringVar(&tags, "tags", "", "Comma separated tags")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Code language")
	return cmd
}

func (r *root) listCmd() *cobra.Command {
	var view, query string
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the notes visible in a view",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd.Context())
			if err != nil {
				return err
			}
			notes := a.svc.List(filter.Query{View: view, Text: query})
			cards := types.ConvertToNoteCards(notes)

			if asJSON {
				enc := json.NewEncoder(r.out)
				enc.SetIndent("", "  ")
				return enc.Encode(cards)
			}
			if len(cards) == 0 {
				fmt.Fprintln(r.out, "No notes found")
				return nil
			}
			renderCards(r.out, cards)
			return nil
		},
	}

	cmd.Flags().StringVar(&view, "view", models.ViewAll, "View (all, pinned, archive, trash) or notebook name")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Search text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func renderCards(w io.Writer, cards []types.NoteCard) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleDouble)
	t.Style().Options.SeparateRows = false

	t.AppendHeader(table.Row{
		text.FgGreen.Sprintf("ID"),
		text.FgGreen.Sprintf("%s", text.Bold.Sprintf("Title")),
		text.FgGreen.Sprintf("Notebook"),
		text.FgGreen.Sprintf("Tags"),
		text.FgGreen.Sprintf("Language"),
		text.FgGreen.Sprintf("Flags"),
		text.FgGreen.Sprintf("Updated"),
	})

	for _, c := range cards {
		t.AppendRow(table.Row{
			c.ID,
			c.Title,
			c.Notebook,
			strings.Join(c.Tags, ", "),
			c.Language,
			cardFlags(c),
			c.Updated,
		})
	}
	t.Render()
}

func cardFlags(c types.NoteCard) string {
	var flags []string
	if c.Pinned {
		flags = append(flags, "pinned")
	}
	if c.Archived {
		flags = append(flags, "archived")
	}
	if c.Trash {
		flags = append(flags, "trash")
	}
	if c.HasImages {
		flags = append(flags, "images")
	}
	return strings.Join(flags, " ")
}

func (r *root) showCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withNote(cmd, args, func(a *app, note models.Note) error {
				if asJSON {
					enc := json.NewEncoder(r.out)
					enc.SetIndent("", "  ")
					return enc.Encode(note)
				}

				card := types.ConvertToNoteCard(note)
				fmt.Fprintln(r.out, text.Bold.Sprint(card.Title))
				fmt.Fprintf(r.out, "id: %s  notebook: %s  updated: %s\n", note.ID, note.Notebook, card.Updated)
				if len(note.Tags) > 0 {
					fmt.Fprintf(r.out, "tags: %s\n", strings.Join(note.Tags, ", "))
				}
				if card.Language != "" {
					fmt.Fprintf(r.out, "language: %s\n", card.Language)
				}
				if flags := cardFlags(card); flags != "" {
					fmt.Fprintf(r.out, "flags: %s\n", flags)
				}
				fmt.Fprintln(r.out)
				fmt.Fprintln(r.out, note.Content)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}

func (r *root) editCmd() *cobra.Command {
	var title, content, contentFile, tags, language string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the title, content, tags or language of a note",
		Long: `Change the title, content, tags or language of a note.
Only the fields given as flags are changed. --content-file - reads the
content from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withNote(cmd, args, func(a *app, note models.Note) error {
				fields := note.Fields()
				flags := cmd.Flags()
				if flags.Changed("title") {
					fields.Title = title
				}
				if flags.Changed("content") {
					fields.Content = content
				}
				if contentFile != "" {
					data, err := r.readInput(contentFile)
					if err != nil {
						return err
					}
					fields.Content = string(data)
				}
				if flags.Changed("tags") {
					fields.Tags = models.ParseTags(tags)
				}
				if flags.Changed("language") {
					fields.Language = language
				}

				if err := a.svc.UpdateNote(note.ID, fields); err != nil {
					return err
				}
				fmt.Fprintf(r.out, "Updated note %s\n", note.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Note title")
	cmd.Flags().StringVarP(&content, "content", "c", "", "Note content")
	cmd.Flags().StringVarP(&contentFile, "content-file", "f", "", "Read content from a file, - for stdin")
	cmd.Flags().StringVar(&tags, "tags", "", "Comma separated tags")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Code language, text for plain text")
	return cmd
}

func (r *root) readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(r.in)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeValidation, "INPUT_READ_FAILED", "failed to read input").
			WithContext("path", path)
	}
	return data, nil
}

var flagPastTense = map[models.Flag][2]string{
	models.FlagPinned:   {"Unpinned", "Pinned"},
	models.FlagArchived: {"Unarchived", "Archived"},
	models.FlagTrash:    {"Restored", "Trashed"},
}

func (r *root) flagCmd(use, short string, flag models.Flag, value bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withNote(cmd, args, func(a *app, note models.Note) error {
				if err := a.store.SetFlag(note.ID, flag, value); err != nil {
					return err
				}
				verb := flagPastTense[flag][0]
				if value {
					verb = flagPastTense[flag][1]
				}
				fmt.Fprintf(r.out, "%s note %s\n", verb, note.ID)
				return nil
			})
		},
	}
}

func (r *root) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a note from the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withNote(cmd, args, func(a *app, note models.Note) error {
				if err := a.store.RestoreNote(note.ID); err != nil {
					return err
				}
				fmt.Fprintf(r.out, "Restored note %s\n", note.ID)
				return nil
			})
		},
	}
}

func (r *root) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a note following the configured delete policy",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withNote(cmd, args, func(a *app, note models.Note) error {
				if err := a.store.DeleteNote(note.ID); err != nil {
					return err
				}
				if _, ok := a.store.Get(note.ID); ok {
					fmt.Fprintf(r.out, "Moved note %s to the trash\n", note.ID)
				} else {
					fmt.Fprintf(r.out, "Deleted note %s\n", note.ID)
				}
				return nil
			})
		},
	}
}

func (r *root) purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <id>",
		Short: "Delete a note permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withNote(cmd, args, func(a *app, note models.Note) error {
				if err := a.store.DeleteNotePermanently(note.ID); err != nil {
					return err
				}
				fmt.Fprintf(r.out, "Deleted note %s\n", note.ID)
				return nil
			})
		},
	}
}

func (r *root) moveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <notebook>",
		Short: "File a note under a notebook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withNote(cmd, args, func(a *app, note models.Note) error {
				if err := a.svc.MoveNote(note.ID, args[1]); err != nil {
					return err
				}
				fmt.Fprintf(r.out, "Moved note %s to %s\n", note.ID, args[1])
				return nil
			})
		},
	}
}

func (r *root) formatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format <id>",
		Short: "Format the code in a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withNote(cmd, args, func(a *app, note models.Note) error {
				if err := a.svc.FormatNote(cmd.Context(), note.ID); err != nil {
					return err
				}
				fmt.Fprintf(r.out, "Formatted note %s\n", note.ID)
				return nil
			})
		},
	}
}
