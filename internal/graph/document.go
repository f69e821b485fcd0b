package graph

// LayoutKind selects the default-position algorithm
type LayoutKind string

const (
	LayoutTree   LayoutKind = "tree"
	LayoutRadial LayoutKind = "radial"
)

// LayoutConfig is the per-document layout configuration
type LayoutConfig struct {
	Kind       LayoutKind `json:"kind"`
	AutoLayout bool       `json:"auto_layout"`
}

// Sharing holds the sharing metadata of a document
type Sharing struct {
	Shared   bool   `json:"shared"`
	ReadOnly bool   `json:"read_only"`
	ShareID  string `json:"share_id,omitempty"`
}

// Document is a diagram: its node list plus layout and sharing metadata
type Document struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	OwnerID   string       `json:"owner_id"`
	Nodes     []Node       `json:"nodes"`
	Layout    LayoutConfig `json:"layout"`
	Sharing   Sharing      `json:"sharing"`
	CreatedAt int64        `json:"created_at"`
	UpdatedAt int64        `json:"updated_at"`
}

// Clone creates a deep copy of the document
func (d Document) Clone() Document {
	clone := d
	clone.Nodes = CloneNodes(d.Nodes)
	return clone
}

// NodePatch is a single-node partial update. Nil fields are left untouched.
type NodePatch struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Label    *string  `json:"label,omitempty"`
	Shared   *bool    `json:"shared,omitempty"`
	ParentID *string  `json:"parent_id,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p NodePatch) IsEmpty() bool {
	return p.X == nil && p.Y == nil && p.Label == nil && p.Shared == nil && p.ParentID == nil
}

// ActiveEditor is one presence record: a user who currently has a document open
type ActiveEditor struct {
	DocumentID  string `json:"document_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	LastSeen    int64  `json:"last_seen"` // Unix millis
}
