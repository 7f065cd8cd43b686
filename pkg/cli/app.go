package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"tempnotes/pkg/config"
	"tempnotes/pkg/errors"
	"tempnotes/pkg/filter"
	"tempnotes/pkg/formatter"
	"tempnotes/pkg/imaging"
	"tempnotes/pkg/services"
	"tempnotes/pkg/storage"
)

// EnvPassphrase supplies the encryption passphrase without a prompt
const EnvPassphrase = "TEMPNOTES_PASSPHRASE"

// app holds everything a command needs
type app struct {
	cfg    *config.Config
	fileKV *storage.FileKV
	store  *storage.NoteStore
	svc    *services.NoteService
	logger *slog.Logger
}

// openKV opens the data directory, wrapping it with encryption when the
// configuration asks for it or the data is already encrypted
func openKV(cfg *config.Config, in io.Reader, out io.Writer, logger *slog.Logger) (*storage.FileKV, storage.KV, error) {
	fileKV, err := storage.NewFileKV(cfg.DataPath, logger)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Encryption.Enabled && !storage.IsEncrypted(fileKV) {
		return fileKV, fileKV, nil
	}

	pass, err := readPassphrase(in, out)
	if err != nil {
		return nil, nil, err
	}
	kv, err := storage.OpenEncryptedKV(fileKV, pass)
	if err != nil {
		return nil, nil, err
	}
	return fileKV, kv, nil
}

func readPassphrase(in io.Reader, out io.Writer) (string, error) {
	if pass := os.Getenv(EnvPassphrase); pass != "" {
		return pass, nil
	}
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", errors.New(errors.ErrTypeCrypto, "PASSPHRASE_REQUIRED", "passphrase required").
			WithUserMessage(fmt.Sprintf("Data is encrypted; set %s or run from a terminal", EnvPassphrase))
	}

	fmt.Fprint(out, "Passphrase: ")
	pass, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrTypeCrypto, "PASSPHRASE_READ_FAILED", "failed to read passphrase")
	}
	return string(pass), nil
}

// newStore builds a note store configured from cfg
func newStore(cfg *config.Config, kv storage.KV, logger *slog.Logger) (*storage.NoteStore, error) {
	policy, err := storage.ParseDeletePolicy(cfg.DeletePolicy)
	if err != nil {
		return nil, err
	}
	return storage.NewNoteStore(kv,
		storage.WithDefaultNotebook(cfg.DefaultNotebook),
		storage.WithDeletePolicy(policy),
		storage.WithLogger(logger),
	), nil
}

// newService builds the note service with the formatter and image pipeline
// described by cfg
func newService(cfg *config.Config, store *storage.NoteStore, logger *slog.Logger) (*services.NoteService, error) {
	order, err := filter.ParseSortOrder(cfg.SortOrder)
	if err != nil {
		return nil, err
	}
	return services.NewNoteService(store,
		services.WithFormatter(formatter.NewRegistry(cfg.Formatter)),
		services.WithCompressor(imaging.NewCompressor(imaging.Options{
			MaxWidth: cfg.ImageMaxWidth,
			Quality:  cfg.ImageQuality,
		})),
		services.WithFilterOptions(filter.Options{
			Sort:              order,
			HideArchivedInAll: cfg.HideArchivedInAll,
		}),
		services.WithLogger(logger),
	), nil
}

// open loads the configuration and the note store
func (r *root) open(ctx context.Context) (*app, error) {
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	fileKV, kv, err := openKV(cfg, r.in, r.errOut, logger)
	if err != nil {
		return nil, err
	}
	store, err := newStore(cfg, kv, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	svc, err := newService(cfg, store, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		fileKV: fileKV,
		store:  store,
		svc:    svc,
		logger: logger,
	}, nil
}
