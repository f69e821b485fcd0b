package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/db"
	"mycelica/arbor/internal/graph"
)

var (
	newRootLabel string
	newLayout    string
	newAuto      bool
	listAll      bool
	listJSON     bool
	shareOff     bool
	shareRO      bool
	layoutAuto   bool
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a " + dbFileName + " database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := dbPath
		if path == "" {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path = filepath.Join(dir, dbFileName)
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("database already exists: %s", path)
		}
		d, err := db.OpenDB(path)
		if err != nil {
			return err
		}
		defer d.Close()
		fmt.Printf("Initialized %s\n", path)
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a document with a single root node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := graph.LayoutKind(newLayout)
		if kind != graph.LayoutTree && kind != graph.LayoutRadial {
			return fmt.Errorf("unknown layout %q (tree or radial)", newLayout)
		}
		store, done, err := OpenBackend()
		if err != nil {
			return err
		}
		defer done()

		label := newRootLabel
		if label == "" {
			label = args[0]
		}
		nodes, err := graph.AddFloating(nil, uuid.NewString(), label, r2.Vec{}, time.Now().UnixMilli())
		if err != nil {
			return err
		}
		doc := &graph.Document{
			Title:   args[0],
			OwnerID: cfg.UserID,
			Nodes:   nodes,
			Layout:  graph.LayoutConfig{Kind: kind, AutoLayout: newAuto},
		}
		if err := store.CreateDocument(cmd.Context(), doc); err != nil {
			return err
		}
		fmt.Printf("Created %s %s\n", doc.ID, doc.Title)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := OpenBackend()
		if err != nil {
			return err
		}
		defer done()

		owner := cfg.UserID
		if listAll {
			owner = ""
		}
		docs, err := store.ListDocuments(cmd.Context(), owner)
		if err != nil {
			return err
		}
		if listJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(docs)
		}
		if len(docs) == 0 {
			fmt.Println("No documents.")
			return nil
		}
		for _, d := range docs {
			flags := string(d.Layout.Kind)
			if d.Layout.AutoLayout {
				flags += ",auto"
			}
			if d.Sharing.Shared {
				flags += ",shared"
				if d.Sharing.ReadOnly {
					flags += ",ro"
				}
			}
			updated := time.UnixMilli(d.UpdatedAt).Format("2006-01-02 15:04")
			fmt.Printf("  %s  %-30s  %-10s  [%s]  %s\n",
				truncID(d.ID), truncTitle(d.Title, 30), d.OwnerID, flags, updated)
		}
		return nil
	},
}

var shareCmd = &cobra.Command{
	Use:   "share <document>",
	Short: "Share a document with other users, or stop sharing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer d.Close()

		doc, err := ownedDocument(cmd.Context(), d, args[0])
		if err != nil {
			return err
		}
		sharing := graph.Sharing{}
		if !shareOff {
			sharing = graph.Sharing{Shared: true, ReadOnly: shareRO, ShareID: doc.Sharing.ShareID}
			if sharing.ShareID == "" {
				sharing.ShareID = uuid.NewString()
			}
		}
		if err := d.SetSharing(cmd.Context(), doc.ID, sharing); err != nil {
			return err
		}
		if shareOff {
			fmt.Printf("%s is private\n", doc.Title)
		} else {
			fmt.Printf("%s shared (read-only=%t, share id %s)\n", doc.Title, sharing.ReadOnly, sharing.ShareID)
		}
		return nil
	},
}

var setLayoutCmd = &cobra.Command{
	Use:   "set-layout <document> <tree|radial>",
	Short: "Choose the layout algorithm and auto-layout mode of a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := graph.LayoutKind(args[1])
		if kind != graph.LayoutTree && kind != graph.LayoutRadial {
			return fmt.Errorf("unknown layout %q (tree or radial)", args[1])
		}
		d, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer d.Close()

		doc, err := ownedDocument(cmd.Context(), d, args[0])
		if err != nil {
			return err
		}
		return d.SetLayout(cmd.Context(), doc.ID, graph.LayoutConfig{Kind: kind, AutoLayout: layoutAuto})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <document>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := OpenDatabase()
		if err != nil {
			return err
		}
		defer d.Close()

		doc, err := ownedDocument(cmd.Context(), d, args[0])
		if err != nil {
			return err
		}
		if err := d.DeleteDocument(cmd.Context(), doc.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", doc.Title)
		return nil
	},
}

// ownedDocument resolves ref among the user's own documents.
func ownedDocument(ctx context.Context, d *db.DB, ref string) (*graph.Document, error) {
	id, err := ResolveDocument(ctx, d, ref)
	if err != nil {
		return nil, err
	}
	return d.GetDocument(ctx, id, cfg.UserID)
}

func init() {
	newCmd.Flags().StringVar(&newRootLabel, "root", "", "Root node label (defaults to the title)")
	newCmd.Flags().StringVar(&newLayout, "layout", string(graph.LayoutTree), "Layout algorithm: tree or radial")
	newCmd.Flags().BoolVar(&newAuto, "auto", false, "Enable auto-layout")
	listCmd.Flags().BoolVar(&listAll, "all", false, "List every owner's documents")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	shareCmd.Flags().BoolVar(&shareOff, "off", false, "Stop sharing")
	shareCmd.Flags().BoolVar(&shareRO, "read-only", false, "Other users may view but not edit")
	setLayoutCmd.Flags().BoolVar(&layoutAuto, "auto", false, "Enable auto-layout")

	rootCmd.AddCommand(initCmd, newCmd, listCmd, shareCmd, setLayoutCmd, rmCmd)
}
