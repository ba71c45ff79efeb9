package grid

// Position is a stage location in whole step units.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p shifted by (dx, dy).
func (p Position) Add(dx, dy int) Position {
	p.X += dx
	p.Y += dy
	return p
}
