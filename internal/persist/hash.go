package persist

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"mycelica/arbor/internal/graph"
)

// HashNodes fingerprints the persisted shape of a node list: id, position,
// label and parent of every node, in list order.
func HashNodes(nodes []graph.Node) uint64 {
	h := xxhash.New()
	var buf [8]byte
	for i := range nodes {
		n := &nodes[i]
		_, _ = h.WriteString(n.ID)
		_, _ = h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(n.X))
		_, _ = h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(n.Y))
		_, _ = h.Write(buf[:])
		_, _ = h.WriteString(n.Label)
		_, _ = h.Write([]byte{0})
		if n.ParentID != nil {
			_, _ = h.Write([]byte{1})
			_, _ = h.WriteString(*n.ParentID)
		}
		_, _ = h.Write([]byte{0xff})
	}
	return h.Sum64()
}

// HashFlags fingerprints the per-node flags HashNodes leaves out: shared and
// manually positioned. A save is skipped only when both hashes match.
func HashFlags(nodes []graph.Node) uint64 {
	h := xxhash.New()
	for i := range nodes {
		n := &nodes[i]
		_, _ = h.WriteString(n.ID)
		var bits byte
		if n.Shared {
			bits |= 1
		}
		if n.ManuallyPositioned {
			bits |= 2
		}
		_, _ = h.Write([]byte{0, bits})
	}
	return h.Sum64()
}
