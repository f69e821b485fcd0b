package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r2"

	"mycelica/arbor/internal/drag"
	"mycelica/arbor/internal/editor"
	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/persist"
)

var (
	addDir     string
	floatAt    string
	moveTo     string
	moveOnto   string
	markOff    bool
	patchX     float64
	patchY     float64
	patchLabel string
	patchShare string
)

// withWorkspace opens ref, runs fn and closes the workspace, which writes any
// pending save.
func withWorkspace(ctx context.Context, ref string, fn func(ws *editor.Workspace) error) error {
	store, done, err := OpenBackend()
	if err != nil {
		return err
	}
	defer done()

	ws, err := OpenWorkspace(ctx, store, ref)
	if err != nil {
		return err
	}
	defer ws.Close(ctx)
	if !ws.Editable() {
		return fmt.Errorf("%s: %w", ref, editor.ErrPermission)
	}
	return fn(ws)
}

func parseVec(s string) (r2.Vec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return r2.Vec{}, fmt.Errorf("expected x,y, got %q", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return r2.Vec{}, fmt.Errorf("bad x in %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return r2.Vec{}, fmt.Errorf("bad y in %q: %w", s, err)
	}
	return r2.Vec{X: x, Y: y}, nil
}

var addCmd = &cobra.Command{
	Use:   "add <document> <parent> <label>",
	Short: "Add a child node",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := graph.Direction(addDir)
		if !dir.IsValid() {
			return fmt.Errorf("unknown direction %q (right, left, top, bottom)", addDir)
		}
		return withWorkspace(cmd.Context(), args[0], func(ws *editor.Workspace) error {
			parent, err := ResolveNode(ws.Nodes(), args[1])
			if err != nil {
				return err
			}
			id, err := ws.OnNodeAddChild(parent.ID, dir)
			if err != nil || id == "" {
				return err
			}
			if err := ws.OnNodeEdit(id, args[2]); err != nil {
				return err
			}
			fmt.Printf("Added %s under %s\n", id, parent.Label)
			return nil
		})
	},
}

var floatCmd = &cobra.Command{
	Use:   "float <document> <label>",
	Short: "Add a parentless node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, err := parseVec(floatAt)
		if err != nil {
			return err
		}
		return withWorkspace(cmd.Context(), args[0], func(ws *editor.Workspace) error {
			id, err := ws.AddFloating(args[1], ws.WorldToScreen(at))
			if err != nil {
				return err
			}
			fmt.Printf("Added floating %s at (%.0f, %.0f)\n", id, at.X, at.Y)
			return nil
		})
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <document> <node>",
	Short: "Drag a node and its subtree to a position, or onto a new parent",
	Long: `Move replays a pointer drag: the node and every descendant move rigidly.
With --onto a floating node is released next to the target so it snaps there
and is reparented, just as dropping it in an interactive editor would.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (moveTo == "") == (moveOnto == "") {
			return errors.New("exactly one of --to or --onto is required")
		}
		return withWorkspace(cmd.Context(), args[0], func(ws *editor.Workspace) error {
			nodes := ws.Nodes()
			n, err := ResolveNode(nodes, args[1])
			if err != nil {
				return err
			}
			var target r2.Vec
			if moveTo != "" {
				if target, err = parseVec(moveTo); err != nil {
					return err
				}
			} else {
				if !n.IsParentless() {
					return fmt.Errorf("%s already has a parent; only floating nodes snap (use connect)", n.Label)
				}
				p, err := ResolveNode(nodes, moveOnto)
				if err != nil {
					return err
				}
				target = r2.Add(p.Pos(), r2.Vec{X: cfg.SnapThreshold / 2})
			}
			out := DragNode(ws, n.ID, n.Pos(), target, time.Now())
			switch {
			case out.Result != drag.ResultCommitted:
				fmt.Printf("%s did not move\n", n.Label)
			case out.SnapFailed != nil:
				fmt.Printf("Moved %s; snap refused: %v\n", n.Label, out.SnapFailed)
			case out.SnappedTo != "":
				fmt.Printf("Moved %s under %s\n", n.Label, graph.NewIndex(out.Nodes).Get(out.SnappedTo).Label)
			default:
				fmt.Printf("Moved %s to (%.0f, %.0f)\n", n.Label, target.X, target.Y)
			}
			return nil
		})
	},
}

// DragNode replays a press on id at from, one move to to, and a release.
func DragNode(ws *editor.Workspace, id string, from, to r2.Vec, start time.Time) drag.Outcome {
	if !ws.PointerDown(ws.WorldToScreen(from), id, drag.Modifiers{}) {
		return ws.PointerUp(start)
	}
	frame := cfg.FrameInterval + time.Millisecond
	ws.PointerMove(ws.WorldToScreen(to), start.Add(frame))
	return ws.PointerUp(start.Add(2 * frame))
}

var connectCmd = &cobra.Command{
	Use:   "connect <document> <child> <parent>",
	Short: "Reparent a node under another node",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd.Context(), args[0], func(ws *editor.Workspace) error {
			nodes := ws.Nodes()
			child, err := ResolveNode(nodes, args[1])
			if err != nil {
				return err
			}
			parent, err := ResolveNode(nodes, args[2])
			if err != nil {
				return err
			}
			if err := ws.OnNodeConnect(child.ID, parent.ID); err != nil {
				return err
			}
			after := graph.NewIndex(ws.Nodes()).Get(child.ID)
			if after == nil || !after.HasParent(parent.ID) {
				fmt.Printf("%s was not connected (root, self or cycle)\n", child.Label)
				return nil
			}
			fmt.Printf("Connected %s under %s\n", child.Label, parent.Label)
			return nil
		})
	},
}

var delCmd = &cobra.Command{
	Use:   "del <document> <node>",
	Short: "Delete a node and its subtree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd.Context(), args[0], func(ws *editor.Workspace) error {
			n, err := ResolveNode(ws.Nodes(), args[1])
			if err != nil {
				return err
			}
			before := len(ws.Nodes())
			if err := ws.OnNodeDelete(n.ID); err != nil {
				return err
			}
			removed := before - len(ws.Nodes())
			if removed == 0 {
				fmt.Printf("%s was not deleted (the root cannot be deleted)\n", n.Label)
				return nil
			}
			fmt.Printf("Deleted %s (%d nodes)\n", n.Label, removed)
			return nil
		})
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <document> <node> <label>",
	Short: "Change a node label",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd.Context(), args[0], func(ws *editor.Workspace) error {
			n, err := ResolveNode(ws.Nodes(), args[1])
			if err != nil {
				return err
			}
			return ws.OnNodeEdit(n.ID, args[2])
		})
	},
}

var markCmd = &cobra.Command{
	Use:   "mark <document> <node>",
	Short: "Mark a node shared, highlighting its whole branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd.Context(), args[0], func(ws *editor.Workspace) error {
			n, err := ResolveNode(ws.Nodes(), args[1])
			if err != nil {
				return err
			}
			if err := ws.SetShared(n.ID, !markOff); err != nil {
				return err
			}
			fmt.Printf("%d nodes highlighted\n", len(ws.Highlighted()))
			return nil
		})
	},
}

var layoutCmd = &cobra.Command{
	Use:   "layout <document>",
	Short: "Recompute default positions of every node that is not pinned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withWorkspace(cmd.Context(), args[0], func(ws *editor.Workspace) error {
			return ws.Relayout()
		})
	},
}

var patchCmd = &cobra.Command{
	Use:   "patch <document> <node>",
	Short: "Write a single-node change straight to the store",
	Long: `Patch sends one node update without loading and re-saving the whole
document. Only the fields given as flags change; setting a position pins the
node.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, done, err := OpenBackend()
		if err != nil {
			return err
		}
		defer done()

		ctx := cmd.Context()
		docID, err := ResolveDocument(ctx, store, args[0])
		if err != nil {
			return err
		}
		doc, err := persist.LoadDocument(ctx, store, docID, cfg.UserID)
		if err != nil {
			return err
		}
		if !(editor.OwnerAuthorizer{}).CanEdit(doc, cfg.UserID) {
			return fmt.Errorf("%s: %w", args[0], editor.ErrPermission)
		}
		n, err := ResolveNode(doc.Nodes, args[1])
		if err != nil {
			return err
		}

		var patch graph.NodePatch
		flags := cmd.Flags()
		if flags.Changed("x") {
			patch.X = &patchX
		}
		if flags.Changed("y") {
			patch.Y = &patchY
		}
		if flags.Changed("label") {
			patch.Label = &patchLabel
		}
		if flags.Changed("shared") {
			b, err := strconv.ParseBool(patchShare)
			if err != nil {
				return fmt.Errorf("--shared: %w", err)
			}
			patch.Shared = &b
		}
		if patch.IsEmpty() {
			return errors.New("nothing to patch (use --x, --y, --label or --shared)")
		}

		gw := persist.NewGateway(store, doc.ID, cfg.GatewayOptions(log))
		defer gw.Close(ctx)
		if !gw.UpdateNode(ctx, n.ID, patch) {
			return fmt.Errorf("patching %s failed", n.Label)
		}
		fmt.Printf("Patched %s\n", n.Label)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addDir, "dir", string(graph.DirRight), "Placement relative to the parent: right, left, top, bottom")
	floatCmd.Flags().StringVar(&floatAt, "at", "0,0", "World position x,y")
	moveCmd.Flags().StringVar(&moveTo, "to", "", "Drop position x,y")
	moveCmd.Flags().StringVar(&moveOnto, "onto", "", "Drop next to this node so it becomes the parent")
	markCmd.Flags().BoolVar(&markOff, "off", false, "Clear the shared mark")
	patchCmd.Flags().Float64Var(&patchX, "x", 0, "New x position")
	patchCmd.Flags().Float64Var(&patchY, "y", 0, "New y position")
	patchCmd.Flags().StringVar(&patchLabel, "label", "", "New label")
	patchCmd.Flags().StringVar(&patchShare, "shared", "", "true or false")

	rootCmd.AddCommand(addCmd, floatCmd, moveCmd, connectCmd, delCmd, renameCmd, markCmd, layoutCmd, patchCmd)
}
