// Package physics resolves avatar displacement against the world: a single
// capsule standing on one horizontal ground plane.
package physics

import "github.com/go-gl/mathgl/mgl64"

// Ground is a capsule-vs-plane resolver. Positions are the capsule's feet.
type Ground struct {
	GroundY   float64 // height of the walkable plane
	SkinWidth float64 // feet within this distance of the plane count as grounded
}

// Resolve moves pos by displacement, keeps the feet on or above the plane
// and reports whether the capsule rests on it.
func (g Ground) Resolve(pos, displacement mgl64.Vec3) (mgl64.Vec3, bool) {
	next := pos.Add(displacement)
	if next.Y() < g.GroundY {
		next[1] = g.GroundY
	}
	return next, next.Y()-g.GroundY <= g.SkinWidth
}

// Grounded reports whether feet at pos rest on the plane.
func (g Ground) Grounded(pos mgl64.Vec3) bool {
	return pos.Y()-g.GroundY <= g.SkinWidth
}
