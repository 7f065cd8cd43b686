// Package cli implements the tempnotes command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"tempnotes/pkg/errors"
	"tempnotes/pkg/models"
)

// root carries the global flags and streams shared by every command
type root struct {
	verbose    bool
	configPath string

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	r := &root{in: os.Stdin}

	cmd := &cobra.Command{
		Use:   "tempnotes",
		Short: "Quick notes with notebooks, views and search",
		Long: `tempnotes keeps short notes in a local data directory.
Notes can be pinned, archived, trashed, filed in notebooks, searched,
formatted as code and exported as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			r.out = cmd.OutOrStdout()
			r.errOut = cmd.ErrOrStderr()
			if cmd.InOrStdin() != os.Stdin {
				r.in = cmd.InOrStdin()
			}

			level := slog.LevelInfo
			if r.verbose {
				level = slog.LevelDebug
			}
			opts := &slog.HandlerOptions{
				Level: level,
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(r.errOut, opts)))
		},
	}

	cmd.PersistentFlags().BoolVarP(&r.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringVar(&r.configPath, "config", "", "Config file (default $TEMPNOTES_CONFIG or the user config dir)")

	cmd.AddCommand(
		r.newCmd(),
		r.listCmd(),
		r.showCmd(),
		r.editCmd(),
		r.flagCmd("pin", "Pin a note", models.FlagPinned, true),
		r.flagCmd("unpin", "Unpin a note", models.FlagPinned, false),
		r.flagCmd("archive", "Archive a note", models.FlagArchived, true),
		r.flagCmd("unarchive", "Move a note out of the archive", models.FlagArchived, false),
		r.flagCmd("trash", "Move a note to the trash", models.FlagTrash, true),
		r.restoreCmd(),
		r.deleteCmd(),
		r.purgeCmd(),
		r.moveCmd(),
		r.formatCmd(),
		r.notebookCmd(),
		r.imageCmd(),
		r.exportCmd(),
		r.importCmd(),
		r.migrateCmd(),
		r.backupCmd(),
		r.serveCmd(),
		r.configCmd(),
	)
	return cmd
}

// Execute runs the command line and exits on failure
func Execute() {
	cmd := NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", userMessage(err))
		os.Exit(1)
	}
}

// userMessage returns the message shown for err. Errors outside the
// application taxonomy come from flag parsing and are shown as is.
func userMessage(err error) string {
	appErr, ok := errors.As(err)
	if !ok {
		return err.Error()
	}
	if appErr.InternalErr != nil {
		slog.Debug("command failed", "code", appErr.Code, "cause", appErr.InternalErr)
	}
	return appErr.GetUserMessage()
}
