package canvas

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    Color
		wantErr bool
	}{
		{name: "hash prefixed", in: "#FF0000", want: Color{R: 0xFF}},
		{name: "lower case", in: "#00ff7f", want: Color{G: 0xFF, B: 0x7F}},
		{name: "no prefix", in: "102030", want: Color{R: 0x10, G: 0x20, B: 0x30}},
		{name: "short form", in: "#abc", want: Color{R: 0xAA, G: 0xBB, B: 0xCC}},
		{name: "too long", in: "#FF00000", wantErr: true},
		{name: "not hex", in: "#GG0000", wantErr: true},
		{name: "signed", in: "+12345", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseColor(tc.in)
			if tc.wantErr {
				if err == nil || !errors.Is(err, ErrInvalidColor) {
					t.Fatalf("want ErrInvalidColor, got %v", err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestColorHex_Canonical(t *testing.T) {
	c, err := ParseColor("#0a0b0c")
	require.NoError(t, err)
	assert.Equal(t, "#0A0B0C", c.Hex())
}

func TestStore_SetGet(t *testing.T) {
	s := NewStore()

	_, ok, err := s.Get(3, 4)
	require.NoError(t, err)
	assert.False(t, ok, "cells start unset")

	red := Color{R: 0xFF}
	require.NoError(t, s.Set(3, 4, red))

	got, ok, err := s.Get(3, 4)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, red, got)

	// overwrite
	blue := Color{B: 0xFF}
	require.NoError(t, s.Set(3, 4, blue))
	got, _, _ = s.Get(3, 4)
	assert.Equal(t, blue, got)
}

func TestStore_RejectsOutOfBounds(t *testing.T) {
	cases := []struct {
		name string
		x, y int
	}{
		{name: "negative x", x: -1, y: 0},
		{name: "negative y", x: 0, y: -1},
		{name: "x at width", x: Width, y: 0},
		{name: "y at height", x: 0, y: Height},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewStore()
			err := s.Set(tc.x, tc.y, White)
			if !errors.Is(err, ErrOutOfBounds) {
				t.Fatalf("Set: want ErrOutOfBounds, got %v", err)
			}
			_, _, err = s.Get(tc.x, tc.y)
			if !errors.Is(err, ErrOutOfBounds) {
				t.Fatalf("Get: want ErrOutOfBounds, got %v", err)
			}
			assert.Equal(t, 0, s.Count())
		})
	}
}

func TestStore_SnapshotRowMajor(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Set(5, 1, Color{R: 1}))
	require.NoError(t, s.Set(0, 0, Color{R: 2}))
	require.NoError(t, s.Set(2, 1, Color{R: 3}))

	got := s.Snapshot()
	want := []Pixel{
		{X: 0, Y: 0, Color: Color{R: 2}},
		{X: 2, Y: 1, Color: Color{R: 3}},
		{X: 5, Y: 1, Color: Color{R: 1}},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, 3, s.Count())
}

func TestStore_SnapshotEmpty(t *testing.T) {
	got := NewStore().Snapshot()
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_ImageUnsetIsWhite(t *testing.T) {
	s := NewStore()
	img := s.Image()
	require.Equal(t, Width, img.Bounds().Dx())
	require.Equal(t, Height, img.Bounds().Dy())

	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if got := img.RGBAAt(x, y); got != White.RGBA() {
				t.Fatalf("pixel (%d,%d) = %v, want white", x, y, got)
			}
		}
	}
}

func TestStore_ImageKeepsExactColor(t *testing.T) {
	s := NewStore()
	c := Color{R: 0x12, G: 0x34, B: 0x56}
	require.NoError(t, s.Set(49, 0, c))

	img := s.Image()
	assert.Equal(t, c.RGBA(), img.RGBAAt(49, 0))
	assert.Equal(t, White.RGBA(), img.RGBAAt(48, 0))
}

// Concurrent placements to the same cell have an unspecified winner; the only
// guarantee is that the cell ends up holding one of the written colors.
func TestStore_ConcurrentSetSameCell(t *testing.T) {
	s := NewStore()
	colors := []Color{{R: 1}, {G: 2}, {B: 3}, {R: 4, G: 4}}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(c Color) {
			defer wg.Done()
			_ = s.Set(7, 7, c)
		}(colors[i%len(colors)])
	}
	wg.Wait()

	got, ok, err := s.Get(7, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, colors, got)
	assert.Equal(t, 1, s.Count())
}

func TestStore_ConcurrentSetDistinctCells(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for y := 0; y < Height; y++ {
		wg.Add(1)
		go func(y int) {
			defer wg.Done()
			for x := 0; x < Width; x++ {
				_ = s.Set(x, y, Color{R: uint8(x), G: uint8(y)})
			}
		}(y)
	}
	wg.Wait()

	assert.Equal(t, Width*Height, s.Count())
	got, _, _ := s.Get(10, 20)
	assert.Equal(t, Color{R: 10, G: 20}, got)
}
