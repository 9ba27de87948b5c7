package game

import "github.com/u1974754/p-final-multi/internal/wire"

// Bounds is the playable area a reported position must fall in.
type Bounds struct {
	XMin   float32
	XMax   float32
	YFloor float32 // exclusive
}

func DefaultBounds() Bounds {
	return Bounds{XMin: -10, XMax: 9, YFloor: -4}
}

// Validator is a coarse anti-cheat check on client-reported positions. It
// does not simulate anything; it only rejects reports that are obviously
// outside the level.
type Validator struct {
	bounds Bounds
}

func NewValidator(b Bounds) *Validator {
	return &Validator{bounds: b}
}

func (v *Validator) Bounds() Bounds { return v.bounds }

// Validate accepts p iff XMin <= x <= XMax and y > YFloor. Z is not checked.
// NaN coordinates fail every comparison and are rejected.
func (v *Validator) Validate(p wire.Vec3) bool {
	return p.X >= v.bounds.XMin && p.X <= v.bounds.XMax && p.Y > v.bounds.YFloor
}
