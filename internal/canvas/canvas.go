package canvas

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"
	"sync"
)

var ErrOutOfBounds = errors.New("coordinates out of bounds")
var ErrInvalidColor = errors.New("invalid color")

const (
	Width  = 50
	Height = 50
)

type Color struct {
	R, G, B uint8
}

var White = Color{R: 0xFF, G: 0xFF, B: 0xFF}

// ParseColor accepts "#RRGGBB", "RRGGBB" and the short "#RGB" form.
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xFF}
}

type Pixel struct {
	X     int
	Y     int
	Color Color
}

type cell struct {
	set   bool
	color Color
}

// Store owns the grid. A single lock covers the whole grid; every operation
// is either O(1) or one W*H pass.
type Store struct {
	mu    sync.RWMutex
	cells [Height][Width]cell
}

func NewStore() *Store {
	return &Store{}
}

func InBounds(x, y int) bool {
	return x >= 0 && x < Width && y >= 0 && y < Height
}

// Get reports the color at (x, y) and whether the cell has been set.
func (s *Store) Get(x, y int) (Color, bool, error) {
	if !InBounds(x, y) {
		return Color{}, false, ErrOutOfBounds
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cells[y][x]
	return c.color, c.set, nil
}

func (s *Store) Set(x, y int, c Color) error {
	if !InBounds(x, y) {
		return ErrOutOfBounds
	}
	s.mu.Lock()
	s.cells[y][x] = cell{set: true, color: c}
	s.mu.Unlock()
	return nil
}

// Snapshot lists colored cells in row-major order.
func (s *Store) Snapshot() []Pixel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pixels := []Pixel{}
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if c := s.cells[y][x]; c.set {
				pixels = append(pixels, Pixel{X: x, Y: y, Color: c.color})
			}
		}
	}
	return pixels
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if s.cells[y][x].set {
				n++
			}
		}
	}
	return n
}

// Image copies the grid into a Width x Height raster, one cell per pixel.
// Unset cells are white.
func (s *Store) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))

	s.mu.RLock()
	defer s.mu.RUnlock()
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			c := s.cells[y][x]
			if !c.set {
				img.SetRGBA(x, y, White.RGBA())
				continue
			}
			img.SetRGBA(x, y, c.color.RGBA())
		}
	}
	return img
}
