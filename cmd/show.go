package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"

	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/layout"
)

var (
	showJSON     bool
	showYAML     bool
	importLayout string
)

// Outline is the nested form of a diagram used for YAML export and import.
type Outline struct {
	Title    string        `yaml:"title,omitempty" json:"title,omitempty"`
	Root     OutlineNode   `yaml:"root" json:"root"`
	Floating []OutlineNode `yaml:"floating,omitempty" json:"floating,omitempty"`
}

// OutlineNode is one node and its subtree.
type OutlineNode struct {
	ID       string        `yaml:"id,omitempty" json:"id,omitempty"`
	Label    string        `yaml:"label" json:"label"`
	Shared   bool          `yaml:"shared,omitempty" json:"shared,omitempty"`
	X        *float64      `yaml:"x,omitempty" json:"x,omitempty"`
	Y        *float64      `yaml:"y,omitempty" json:"y,omitempty"`
	Children []OutlineNode `yaml:"children,omitempty" json:"children,omitempty"`
}

var showCmd = &cobra.Command{
	Use:   "show <document>",
	Short: "Print a document as an indented tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := OpenBackend()
		if err != nil {
			return err
		}
		defer done()

		ws, err := OpenWorkspace(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}
		defer ws.Close(cmd.Context())
		doc := ws.Document()

		switch {
		case showJSON:
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		case showYAML:
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(BuildOutline(doc))
		}

		fmt.Printf("\n  %s  (%s", doc.Title, doc.Layout.Kind)
		if doc.Layout.AutoLayout {
			fmt.Print(", auto-layout")
		}
		if !ws.Editable() {
			fmt.Print(", read-only")
		}
		fmt.Println(")")
		fmt.Println("  ────────────────────────────────────────")
		ix := graph.NewIndex(doc.Nodes)
		highlight := ix.SharedHighlight()
		for _, id := range ix.Parentless() {
			printSubtree(ix, highlight, id, 1)
		}
		fmt.Println()
		return nil
	},
}

func printSubtree(ix *graph.Index, highlight map[string]bool, id string, depth int) {
	n := ix.Get(id)
	marker := "-"
	switch {
	case n.Type == graph.TypeRoot && n.IsParentless():
		marker = "*"
	case n.IsParentless():
		marker = "~"
	}
	var tags []string
	if n.Shared {
		tags = append(tags, "shared")
	} else if highlight[id] {
		tags = append(tags, "in shared branch")
	}
	if n.ManuallyPositioned {
		tags = append(tags, "pinned")
	}
	suffix := ""
	if len(tags) > 0 {
		suffix = "  [" + strings.Join(tags, ", ") + "]"
	}
	fmt.Printf("%s%s %s  %s (%.0f, %.0f)%s\n",
		strings.Repeat("  ", depth), marker, truncTitle(n.Label, 50), truncID(n.ID), n.X, n.Y, suffix)
	for _, cid := range ix.ChildrenOf[id] {
		printSubtree(ix, highlight, cid, depth+1)
	}
}

// BuildOutline converts a document into its nested outline.
func BuildOutline(doc *graph.Document) Outline {
	ix := graph.NewIndex(doc.Nodes)
	var build func(id string) OutlineNode
	build = func(id string) OutlineNode {
		n := ix.Get(id)
		x, y := n.X, n.Y
		on := OutlineNode{ID: n.ID, Label: n.Label, Shared: n.Shared}
		if n.ManuallyPositioned {
			on.X, on.Y = &x, &y
		}
		for _, cid := range ix.ChildrenOf[id] {
			on.Children = append(on.Children, build(cid))
		}
		return on
	}

	out := Outline{Title: doc.Title}
	root := ix.Root()
	for _, id := range ix.Parentless() {
		if root != nil && id == root.ID {
			out.Root = build(id)
			continue
		}
		out.Floating = append(out.Floating, build(id))
	}
	return out
}

// floatingGap separates imported floating trees below the root.
const floatingGap = 400.0

// NodesFromOutline builds a node list from an outline. Nodes without an id
// get a fresh one. Nodes with both coordinates keep them as pinned
// positions; eng places the rest. Floating trees are stacked below the root.
func NodesFromOutline(o Outline, eng layout.Engine, now int64) ([]graph.Node, error) {
	var nodes []graph.Node
	positions := make(map[string]r2.Vec)
	var add func(parentID string, on OutlineNode, anchor r2.Vec) error
	add = func(parentID string, on OutlineNode, anchor r2.Vec) error {
		id := on.ID
		if id == "" {
			id = uuid.NewString()
		}
		var err error
		if parentID == "" {
			nodes, err = graph.AddFloating(nodes, id, on.Label, anchor, now)
		} else {
			nodes, err = graph.AddChild(nodes, parentID, id, on.Label, graph.DirRight, now)
		}
		if err != nil {
			return fmt.Errorf("outline node %q: %w", on.Label, err)
		}
		if on.Shared {
			if nodes, err = graph.SetShared(nodes, id, true, now); err != nil {
				return err
			}
		}
		if on.X != nil && on.Y != nil {
			positions[id] = r2.Vec{X: *on.X, Y: *on.Y}
		}
		for _, c := range on.Children {
			if err := add(id, c, r2.Vec{}); err != nil {
				return err
			}
		}
		return nil
	}

	if err := add("", o.Root, r2.Vec{}); err != nil {
		return nil, err
	}
	for i, f := range o.Floating {
		if err := add("", f, r2.Vec{Y: floatingGap * float64(i+1)}); err != nil {
			return nil, err
		}
	}

	nodes = graph.ApplyPositions(nodes, positions, true, now)
	nodes = eng.Apply(nodes)
	if err := graph.CheckInvariants(nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

var importCmd = &cobra.Command{
	Use:   "import <outline.yaml>",
	Short: "Create a document from a YAML outline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := graph.LayoutKind(importLayout)
		if kind != graph.LayoutTree && kind != graph.LayoutRadial {
			return fmt.Errorf("unknown layout %q (tree or radial)", importLayout)
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var o Outline
		if err := yaml.Unmarshal(data, &o); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		if o.Root.Label == "" {
			return fmt.Errorf("%s: outline needs a root label", args[0])
		}
		nodes, err := NodesFromOutline(o, layout.ForKind(kind), time.Now().UnixMilli())
		if err != nil {
			return err
		}

		store, done, err := OpenBackend()
		if err != nil {
			return err
		}
		defer done()

		title := o.Title
		if title == "" {
			title = o.Root.Label
		}
		doc := &graph.Document{
			Title:   title,
			OwnerID: cfg.UserID,
			Nodes:   nodes,
			Layout:  graph.LayoutConfig{Kind: kind},
		}
		if err := store.CreateDocument(cmd.Context(), doc); err != nil {
			return err
		}
		fmt.Printf("Imported %d nodes into %s %s\n", len(nodes), doc.ID, doc.Title)
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output the document as JSON")
	showCmd.Flags().BoolVar(&showYAML, "yaml", false, "Output the document as a YAML outline")
	importCmd.Flags().StringVar(&importLayout, "layout", string(graph.LayoutTree), "Layout algorithm: tree or radial")
	rootCmd.AddCommand(showCmd, importCmd)
}
