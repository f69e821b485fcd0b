package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/persist"
	"mycelica/arbor/internal/server"
	"mycelica/arbor/internal/session"
)

var (
	tabsNode    string
	tabsSession string
)

// withTabs restores the durable session around fn and persists it after.
func withTabs(ctx context.Context, fn func(store server.Backend, tabs *session.TabStore) error) error {
	store, done, err := OpenBackend()
	if err != nil {
		return err
	}
	defer done()

	sc := session.DefaultConfig(cfg.SessionDir)
	sc.Logger = log
	durable, err := session.OpenStorage(sc)
	if err != nil {
		return err
	}
	defer durable.Close()

	tabs := session.NewTabStore(durable, session.Options{
		Key:    tabsSession,
		Logger: log,
		Loader: func(ctx context.Context, ref session.DocumentRef) (*graph.Document, error) {
			return persist.LoadDocument(ctx, store, ref.DocumentID, cfg.UserID)
		},
		OnLoaded: func(tabID string, _ session.TabState, err error) {
			if err != nil {
				log.WithError(err).WithField("tab_id", tabID).Warn("tab could not be loaded")
			}
		},
	})
	tabs.RestoreSession()
	if err := fn(store, tabs); err != nil {
		return err
	}
	tabs.Wait()
	return tabs.PersistSession()
}

// resolveTab finds an open tab by id, id prefix or label.
func resolveTab(tabs *session.TabStore, ref string) (session.Tab, error) {
	var matches []session.Tab
	for _, t := range tabs.Tabs() {
		if t.ID == ref {
			return t, nil
		}
		if strings.HasPrefix(t.ID, ref) || t.Label == ref {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return session.Tab{}, fmt.Errorf("%s: %w", ref, session.ErrNoTab)
	case 1:
		return matches[0], nil
	}
	return session.Tab{}, fmt.Errorf("ambiguous tab '%s' (%d matches)", ref, len(matches))
}

func printTabs(tabs *session.TabStore) {
	list := tabs.Tabs()
	if len(list) == 0 {
		fmt.Println("No open tabs.")
		return
	}
	active := tabs.Active()
	for _, t := range list {
		marker := " "
		if t.ID == active {
			marker = "*"
		}
		state := "not loaded"
		if st, ok := tabs.State(t.ID); ok {
			state = fmt.Sprintf("%d nodes", len(st.Nodes))
			if st.Selection != "" {
				state += ", selected " + truncID(st.Selection)
			}
		}
		fmt.Printf("  %s %s  %-5s %-30s %s\n", marker, truncID(t.ID), t.Kind, truncTitle(t.Label, 30), state)
	}
}

var tabsCmd = &cobra.Command{
	Use:   "tabs",
	Short: "List the open editor tabs of the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTabs(cmd.Context(), func(_ server.Backend, tabs *session.TabStore) error {
			printTabs(tabs)
			return nil
		})
	},
}

var tabsOpenCmd = &cobra.Command{
	Use:   "open <document>",
	Short: "Open a document (or, with --node, one node's subtree) in a tab",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withTabs(ctx, func(store server.Backend, tabs *session.TabStore) error {
			docID, err := ResolveDocument(ctx, store, args[0])
			if err != nil {
				return err
			}
			ref := session.DocumentRef{DocumentID: docID}
			label := args[0]
			if tabsNode != "" {
				doc, err := persist.LoadDocument(ctx, store, docID, cfg.UserID)
				if err != nil {
					return err
				}
				n, err := ResolveNode(doc.Nodes, tabsNode)
				if err != nil {
					return err
				}
				ref.NodeID = n.ID
				label = n.Label
			}
			tab, ready := tabs.OpenTab(ctx, ref, label)
			if !ready {
				tabs.Wait()
			}
			fmt.Printf("Opened tab %s (%s)\n", truncID(tab.ID), tab.Label)
			return nil
		})
	},
}

var tabsSwitchCmd = &cobra.Command{
	Use:   "switch <tab>",
	Short: "Make a tab active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTabs(cmd.Context(), func(_ server.Backend, tabs *session.TabStore) error {
			tab, err := resolveTab(tabs, args[0])
			if err != nil {
				return err
			}
			var from *session.TabState
			if st, ok := tabs.State(tabs.Active()); ok {
				from = &st
			}
			if _, _, err := tabs.SwitchTab(cmd.Context(), from, tab.ID); err != nil {
				return err
			}
			printTabs(tabs)
			return nil
		})
	},
}

var tabsCloseCmd = &cobra.Command{
	Use:   "close <tab>",
	Short: "Close a tab",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTabs(cmd.Context(), func(_ server.Backend, tabs *session.TabStore) error {
			tab, err := resolveTab(tabs, args[0])
			if err != nil {
				return err
			}
			if _, err := tabs.CloseTab(tab.ID); err != nil {
				return err
			}
			printTabs(tabs)
			return nil
		})
	},
}

var tabsResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Reopen the active tab where it was left and refresh its cached state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withTabs(ctx, func(store server.Backend, tabs *session.TabStore) error {
			active := tabs.Active()
			if active == "" {
				return fmt.Errorf("no active tab")
			}
			st, ok := tabs.State(active)
			if !ok {
				return fmt.Errorf("tab %s has no cached state yet", truncID(active))
			}
			ws := NewWorkspace(store)
			if err := ws.OpenTabState(ctx, st); err != nil {
				return err
			}
			defer ws.Close(ctx)

			vp := ws.Viewport()
			view := "graph view"
			if id := ws.FocalID(); id != "" {
				view = "node view of " + truncID(id)
			}
			fmt.Printf("Resumed %s in %s, zoom %.2f, pan (%.0f, %.0f)\n",
				ws.Document().Title, view, vp.Zoom, vp.Pan.X, vp.Pan.Y)
			if sel := ws.Selection(); sel != "" {
				fmt.Printf("Selected %s\n", sel)
			}
			fresh := ws.TabState(active)
			return tabs.UpdateState(active, func(cached *session.TabState) { *cached = fresh })
		})
	},
}

func init() {
	tabsCmd.PersistentFlags().StringVar(&tabsSession, "session", "default", "Session key")
	tabsOpenCmd.Flags().StringVar(&tabsNode, "node", "", "Open a node-centered tab on this node")
	tabsCmd.AddCommand(tabsOpenCmd, tabsSwitchCmd, tabsCloseCmd, tabsResumeCmd)
	rootCmd.AddCommand(tabsCmd)
}
