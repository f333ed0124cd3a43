// Package cli implements the margin CLI commands.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rcliao/margin/internal/anchor"
	"github.com/rcliao/margin/internal/config"
	"github.com/rcliao/margin/internal/logging"
	"github.com/rcliao/margin/internal/session"
	"github.com/rcliao/margin/internal/store"
	"github.com/rcliao/margin/internal/vault"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath  string
	folderFlag  string
	backendFlag string
	rootFlag    string
	dbPath      string
	formatFlag  string
	verbose     bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "margin",
	Short: "Margin notes for markdown documents",
	Long: "Attach notes to passages of markdown documents. Notes live next to the documents " +
		"in plain-text .annotations.md files and are re-anchored by text every time a document is rendered.",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $MARGIN_CONFIG or ~/.margin/config.yaml)")
	RootCmd.PersistentFlags().StringVar(&folderFlag, "folder", "", "Annotation folder inside the vault (default: annotations)")
	RootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Storage backend: fs or sqlite")
	RootCmd.PersistentFlags().StringVarP(&rootFlag, "root", "r", "", "Vault root for documents and the fs backend")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path for the sqlite backend (default: $MARGIN_DB or ~/.margin/margin.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

// loadConfig resolves settings with flag > env > file > default precedence.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile())
	if err != nil {
		return nil, err
	}
	overrides := []struct {
		flag string
		dst  *string
	}{
		{folderFlag, &cfg.Folder},
		{backendFlag, &cfg.Backend},
		{rootFlag, &cfg.Root},
		{dbPath, &cfg.DB},
	}
	for _, o := range overrides {
		if o.flag != "" {
			*o.dst = o.flag
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFile() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

// workspace bundles everything a command needs.
type workspace struct {
	cfg   *config.Config
	log   *zap.Logger
	dir   *vault.Dir // nil for the sqlite backend
	db    *vault.SQLite
	store *store.BlobStore
	coord *session.Coordinator
}

func openStore() (*workspace, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON, Verbose: verbose})
	if err != nil {
		return nil, err
	}

	w := &workspace{cfg: cfg, log: log}
	var v vault.Vault
	switch cfg.Backend {
	case config.BackendSQLite:
		w.db, err = vault.NewSQLite(cfg.DB)
		v = w.db
	default:
		w.dir, err = vault.NewDir(cfg.Root)
		v = w.dir
	}
	if err != nil {
		return nil, err
	}

	w.store, err = store.NewBlobStore(v, cfg.Folder, log)
	if err != nil {
		w.Close()
		return nil, err
	}
	w.coord = session.New(session.Options{
		Store:       w.store,
		Engine:      anchor.New(anchor.Options{PreferPosition: cfg.PreferPosition, Logger: log}),
		Style:       anchor.Style{Color: cfg.Color},
		ActiveStyle: anchor.Style{Color: cfg.ActiveColor},
		Notifier: session.NotifierFunc(func(msg string) {
			fmt.Fprintln(os.Stderr, "margin:", msg)
		}),
		Logger: log,
	})
	log.Debug("workspace opened", zap.String("backend", cfg.Backend), zap.String("folder", cfg.Folder))
	return w, nil
}

func (w *workspace) Close() error {
	_ = w.log.Sync()
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}

// documentPath maps a document name to its file under the vault root.
func (w *workspace) documentPath(doc string) (string, error) {
	c, err := vault.Clean(doc)
	if err != nil {
		return "", fmt.Errorf("document %q: %w", doc, err)
	}
	return filepath.Join(w.cfg.Root, filepath.FromSlash(c)), nil
}

func (w *workspace) readDocument(doc string) ([]byte, error) {
	p, err := w.documentPath(doc)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
