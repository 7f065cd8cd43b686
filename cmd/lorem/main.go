// Command lorem fills the data directory with sample notes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jaswdr/faker"
	"github.com/spf13/cobra"

	"tempnotes/pkg/cli"
	"tempnotes/pkg/config"
	"tempnotes/pkg/seed"
	"tempnotes/pkg/storage"
)

func main() {
	var (
		configPath string
		count      int
		notebooks  []string
	)

	cmd := &cobra.Command{
		Use:   "lorem",
		Short: "Generate sample notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, count, notebooks)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Config file")
	cmd.Flags().IntVarP(&count, "count", "n", 20, "Number of notes")
	cmd.Flags().StringSliceVar(&notebooks, "notebooks", []string{"Work", "Ideas"}, "Extra notebooks to spread notes over")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, count int, notebooks []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	fileKV, err := storage.NewFileKV(cfg.DataPath, nil)
	if err != nil {
		return err
	}
	var kv storage.KV = fileKV
	if storage.IsEncrypted(fileKV) {
		kv, err = storage.OpenEncryptedKV(fileKV, os.Getenv(cli.EnvPassphrase))
		if err != nil {
			return err
		}
	}

	store := storage.NewNoteStore(kv, storage.WithDefaultNotebook(cfg.DefaultNotebook))
	if err := store.Load(ctx); err != nil {
		return err
	}
	for _, nb := range notebooks {
		if err := store.AddNotebook(nb); err != nil {
			return err
		}
	}

	gen := seed.NewGenerator(faker.New(), store.Notebooks())
	for _, s := range gen.Samples(count) {
		note, err := store.CreateNote(s.Notebook)
		if err != nil {
			return err
		}
		if err := store.UpdateNote(note.ID, s.Fields); err != nil {
			return err
		}
		switch {
		case s.Pinned:
			err = store.TogglePin(note.ID)
		case s.Archived:
			err = store.ToggleArchive(note.ID)
		case s.Trash:
			err = store.DeleteNote(note.ID)
		}
		if err != nil {
			return err
		}
	}

	slog.Info("generated notes", "count", count, "data", cfg.DataPath)
	fmt.Printf("Generated %d notes in %s\n", count, cfg.DataPath)
	return nil
}
