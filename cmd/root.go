package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"mycelica/arbor/internal/config"
	"mycelica/arbor/internal/db"
	"mycelica/arbor/internal/editor"
	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/remote"
	"mycelica/arbor/internal/server"
)

const dbFileName = ".arbor.db"

var (
	dbPath    string
	cfgFile   string
	remoteURL string

	cfg *config.Config
	log *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:          "arbor",
	Short:        "Headless hierarchical diagram editor",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = c
		log = cfg.NewLogger(os.Stderr)
		if remoteURL == "" {
			remoteURL = cfg.RemoteURL
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to "+dbFileName+" database")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default "+filepath.Join(config.Dir(), "config.yaml")+")")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "", "Use the arbor server at this URL instead of a local database")
}

// DiscoverDB finds the database path using priority: env > flag > walk-up > config > XDG fallback
func DiscoverDB() (string, error) {
	// 1. Environment variable
	if envPath := os.Getenv("ARBOR_DB"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	// 2. CLI flag
	if dbPath != "" {
		if _, err := os.Stat(dbPath); err == nil {
			return dbPath, nil
		}
		return "", fmt.Errorf("database not found at --db path: %s", dbPath)
	}

	// 3. Walk up from CWD
	dir, err := os.Getwd()
	if err == nil {
		for {
			candidate := filepath.Join(dir, dbFileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	// 4. Configured path
	if cfg != nil && cfg.DBPath != "" {
		if _, err := os.Stat(cfg.DBPath); err == nil {
			return cfg.DBPath, nil
		}
	}

	// 5. XDG fallback
	if xdgPath := xdgDBPath(); xdgPath != "" {
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath, nil
		}
	}

	return "", fmt.Errorf("no %s found (set ARBOR_DB, use --db, or run arbor init)", dbFileName)
}

func xdgDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "arbor", "arbor.db")
}

// OpenDatabase discovers and opens the local database
func OpenDatabase() (*db.DB, error) {
	if remoteURL != "" {
		return nil, fmt.Errorf("this command needs a local database; drop --remote")
	}
	path, err := DiscoverDB()
	if err != nil {
		return nil, err
	}
	return db.OpenDB(path)
}

// OpenBackend returns the remote client when --remote (or remote_url) is
// set, else the local database. The returned func releases it.
func OpenBackend() (server.Backend, func(), error) {
	if remoteURL != "" {
		c, err := remote.New(remoteURL, nil)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("url", remoteURL).Debug("using remote store")
		return c, func() {}, nil
	}
	d, err := OpenDatabase()
	if err != nil {
		return nil, nil, err
	}
	return d, func() { d.Close() }, nil
}

// NewWorkspace builds an editor workspace from the loaded configuration.
func NewWorkspace(store server.Backend) *editor.Workspace {
	return editor.New(store, editor.Options{
		UserID:      cfg.UserID,
		DisplayName: cfg.DisplayName,
		Gateway:     cfg.GatewayOptions(log),
		Drag:        cfg.DragOptions(),
		Viewport:    cfg.ViewportOptions(),
		Logger:      log,
		OnAuthRequired: func(action string) {
			log.WithField("action", action).Warn("document is read-only for " + cfg.UserID)
		},
	})
}

// OpenWorkspace resolves ref and opens it in a new workspace. Closing the
// returned workspace flushes pending saves.
func OpenWorkspace(ctx context.Context, store server.Backend, ref string) (*editor.Workspace, error) {
	docID, err := ResolveDocument(ctx, store, ref)
	if err != nil {
		return nil, err
	}
	ws := NewWorkspace(store)
	if err := ws.LoadAndOpen(ctx, docID); err != nil {
		return nil, err
	}
	return ws, nil
}

// ResolveDocument finds one of the user's documents by full ID, ID prefix,
// or exact title. References that match nothing are returned unchanged so
// shared documents of other owners can still be opened by ID.
func ResolveDocument(ctx context.Context, store server.Backend, reference string) (string, error) {
	docs, err := store.ListDocuments(ctx, cfg.UserID)
	if err != nil {
		return "", fmt.Errorf("listing documents: %w", err)
	}
	for _, d := range docs {
		if d.ID == reference {
			return d.ID, nil
		}
	}

	var matches []graph.Document
	for _, d := range docs {
		if strings.HasPrefix(d.ID, reference) || strings.EqualFold(d.Title, reference) {
			matches = append(matches, d)
		}
	}
	switch len(matches) {
	case 0:
		return reference, nil
	case 1:
		return matches[0].ID, nil
	}
	lines := make([]string, len(matches))
	for i, m := range matches {
		lines[i] = fmt.Sprintf("  %s %s", truncID(m.ID), m.Title)
	}
	return "", fmt.Errorf("ambiguous document '%s'. %d matches:\n%s\nUse a full document ID instead.",
		reference, len(matches), strings.Join(lines, "\n"))
}

// ResolveNode finds a node by full ID, ID prefix (4+ chars), or label.
func ResolveNode(nodes []graph.Node, reference string) (*graph.Node, error) {
	ix := graph.NewIndex(nodes)
	// 1. Exact ID match
	if n := ix.Get(reference); n != nil {
		return n, nil
	}

	// 2. ID prefix match
	var matches []*graph.Node
	if len(reference) >= 4 {
		for i := range ix.Nodes {
			if strings.HasPrefix(ix.Nodes[i].ID, reference) {
				matches = append(matches, &ix.Nodes[i])
			}
		}
	}

	// 3. Label match
	if len(matches) == 0 {
		for i := range ix.Nodes {
			if strings.EqualFold(ix.Nodes[i].Label, reference) {
				matches = append(matches, &ix.Nodes[i])
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("node not found: %s", reference)
	case 1:
		return matches[0], nil
	}
	limit := min(len(matches), 10)
	lines := make([]string, limit)
	for i := 0; i < limit; i++ {
		lines[i] = fmt.Sprintf("  %s %s", truncID(matches[i].ID), truncTitle(matches[i].Label, 40))
	}
	return nil, fmt.Errorf("ambiguous reference '%s'. %d matches:\n%s\nUse a node ID instead.",
		reference, len(matches), strings.Join(lines, "\n"))
}

func truncID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncTitle(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back off to a rune boundary
	truncated := s[:max]
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + "..."
}
