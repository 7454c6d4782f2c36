/*package track holds the characteristic track and segment data model
consumed by the transport solver, along with a concrete one-dimensional slab
track generator.

A track is a directed ray at a fixed azimuthal angle. Each crossing of a flat
source region is a segment carrying the chord length inside that region. The
solver treats tracks as read-only geometry; it owns only the angular flux
values carried between connected tracks.
*/
package track

// Boundary is the condition applied where a track meets the domain edge.
type Boundary int

const (
	Vacuum Boundary = iota
	Reflective
	Periodic
)

func (b Boundary) String() string {
	switch b {
	case Vacuum:
		return "vacuum"
	case Reflective:
		return "reflective"
	case Periodic:
		return "periodic"
	}
	return "unknown"
}

// Segment is the portion of a track inside a single flat source region.
type Segment struct {
	Region int
	Length float64
}

// Link wires one traversal direction of a track to the track that receives
// its outgoing angular flux. Forward reports whether the flux enters the
// partner travelling in the partner's forward (segment-order) direction.
// When BC is Vacuum the flux is discarded and tallied as leakage, but the
// link still names the slot that must be zeroed.
type Link struct {
	Track   int
	Forward bool
	BC      Boundary
}

// Track is a directed characteristic ray crossing zero or more regions.
type Track struct {
	Azim     int
	Segments []Segment

	// Fwd is the outgoing linkage when the track is traversed in segment
	// order, Bwd when traversed in reverse.
	Fwd, Bwd Link
}
