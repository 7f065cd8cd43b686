package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"tempnotes/pkg/config"
	"tempnotes/pkg/errors"
	"tempnotes/pkg/migrate"
	"tempnotes/pkg/services"
	"tempnotes/pkg/storage"
)

func (r *root) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export every note as JSON",
		Long:  "Export every note as JSON to file (default " + services.ExportFileName + "), - for stdout.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := r.open(cmd.Context())
			if err != nil {
				return err
			}
			path := services.ExportFileName
			if len(args) == 1 {
				path = args[0]
			}
			if path == "-" {
				return a.svc.Export(r.out)
			}

			f, err := os.Create(path)
			if err != nil {
				return errors.Wrap(err, errors.ErrTypeStorage, "EXPORT_FAILED", "failed to create export file").
					WithContext("path", path)
			}
			if err := a.svc.Export(f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return errors.Wrap(err, errors.ErrTypeStorage, "EXPORT_FAILED", "failed to write export file")
			}
			fmt.Fprintf(r.out, "Exported %d notes to %s\n", len(a.store.Notes()), path)
			return nil
		},
	}
}

func (r *root) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file or pattern>...",
		Short: "Import notes from exported JSON files",
		Long: `Import notes from exported JSON files. Patterns such as backups/**/*.json
are expanded. Each file is imported completely or not at all.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			for _, pattern := range args {
				matches, err := doublestar.FilepathGlob(pattern)
				if err != nil {
					return errors.Wrap(err, errors.ErrTypeValidation, "INVALID_PATTERN", "invalid file pattern").
						WithContext("pattern", pattern)
				}
				if len(matches) == 0 {
					return errors.New(errors.ErrTypeNotFound, "NO_FILES", "no files match").
						WithUserMessage(fmt.Sprintf("No files match %s", pattern))
				}
				files = append(files, matches...)
			}

			a, err := r.open(cmd.Context())
			if err != nil {
				return err
			}

			var failed int
			for _, path := range files {
				f, err := os.Open(path)
				if err != nil {
					return errors.ErrMalformedImport.WithCause(err).WithContext("path", path)
				}
				count, err := a.svc.Import(f)
				f.Close()
				if err != nil {
					failed++
					fmt.Fprintf(r.errOut, "%s: %s\n", path, userMessage(err))
					continue
				}
				fmt.Fprintf(r.out, "Imported %d notes from %s\n", count, path)
			}
			if failed > 0 {
				return errors.ErrMalformedImport.WithContext("failed", failed).
					WithUserMessage(fmt.Sprintf("%d of %d files could not be imported", failed, len(files)))
			}
			return nil
		},
	}
}

func (r *root) migrateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Convert notes stored in the v1 layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(r.configPath)
			if err != nil {
				return err
			}
			_, kv, err := openKV(cfg, r.in, r.errOut, nil)
			if err != nil {
				return err
			}

			pending, err := migrate.FromV1(kv, cfg.DefaultNotebook, time.Now())
			if err != nil {
				return errors.ErrStorageReadFailed.WithCause(err)
			}
			if pending == nil {
				fmt.Fprintln(r.out, "No v1 notes found")
				return nil
			}
			if len(pending.Skipped) > 0 {
				fmt.Fprintf(r.out, "Skipping %d unreadable notes: %s\n", len(pending.Skipped), strings.Join(pending.Skipped, ", "))
			}
			if dryRun {
				fmt.Fprintf(r.out, "Would migrate %d notes into %s\n", len(pending.Notes), cfg.DefaultNotebook)
				return nil
			}

			store, err := newStore(cfg, kv, nil)
			if err != nil {
				return err
			}
			if err := store.Load(cmd.Context()); err != nil {
				return err
			}
			if _, found, _ := kv.Get(migrate.V1IDsKey); found {
				return errors.New(errors.ErrTypeStorage, "MIGRATION_SKIPPED", "current notes exist").
					WithUserMessage("Current notes exist; v1 notes were left in place")
			}
			fmt.Fprintf(r.out, "Migrated %d notes into %s\n", len(pending.Notes), cfg.DefaultNotebook)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be migrated")
	return cmd
}

func (r *root) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Zip the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(r.configPath)
			if err != nil {
				return err
			}
			path, err := storage.BackupData(cfg.DataPath, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(r.out, path)
			return nil
		},
	}
}
