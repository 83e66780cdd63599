package types

// Pixel is one colored cell on the wire. Color is always "#RRGGBB".
type Pixel struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}
