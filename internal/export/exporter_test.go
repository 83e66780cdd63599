package export

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pixel-battle-backend/internal/canvas"
)

func TestEncode_Deterministic(t *testing.T) {
	s := canvas.NewStore()
	require.NoError(t, s.Set(1, 1, canvas.Color{R: 0xAB, G: 0xCD, B: 0xEF}))

	first, err := Encode(s.Image())
	require.NoError(t, err)
	second, err := Encode(s.Image())
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second), "same canvas must encode to identical bytes")
}

func TestEncode_RoundTrip(t *testing.T) {
	s := canvas.NewStore()
	red := canvas.Color{R: 0xFF}
	require.NoError(t, s.Set(0, 0, red))

	data, err := Encode(s.Image())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, canvas.Width, img.Bounds().Dx())
	require.Equal(t, canvas.Height, img.Bounds().Dy())

	for y := 0; y < canvas.Height; y++ {
		for x := 0; x < canvas.Width; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			want := canvas.White
			if x == 0 && y == 0 {
				want = red
			}
			got := canvas.Color{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
			if got != want || a != 0xFFFF {
				t.Fatalf("pixel (%d,%d) = %v (a=%d), want %v", x, y, got, a, want)
			}
		}
	}
}

func TestEncode_NilImage(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestExporter_SaveWritesDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	fc := clockwork.NewFakeClockAt(time.Date(2026, 10, 18, 12, 30, 0, 0, time.UTC))
	cat := NewMemoryCatalog()
	e := NewExporter(dir, "main", fc, cat, zap.NewNop())

	img := canvas.NewStore().Image()
	a1, err := e.Save(context.Background(), img, 0, TriggerSave)
	require.NoError(t, err)
	a2, err := e.Save(context.Background(), img, 0, TriggerEnd)
	require.NoError(t, err)

	assert.Equal(t, "battle_main_20261018_123000_001.png", a1.Filename)
	assert.Equal(t, "battle_main_20261018_123000_002.png", a2.Filename)
	assert.Equal(t, a1.Image, a2.Image)

	onDisk, err := os.ReadFile(filepath.Join(dir, a1.Filename))
	require.NoError(t, err)
	assert.Equal(t, a1.Image, onDisk)

	listed, err := cat.List(context.Background(), "main")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, TriggerSave, listed[0].Trigger)
	assert.Equal(t, TriggerEnd, listed[1].Trigger)
	assert.Nil(t, listed[0].Image, "catalog keeps metadata only")
}

func TestExporter_NoDirKeepsBytesOnly(t *testing.T) {
	e := NewExporter("", "main", clockwork.NewFakeClock(), nil, zap.NewNop())
	a, err := e.Save(context.Background(), canvas.NewStore().Image(), 0, TriggerSave)
	require.NoError(t, err)
	assert.Empty(t, a.Path)
	assert.NotEmpty(t, a.Image)
}

func TestExporter_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	fc := clockwork.NewFakeClockAt(time.Date(2026, 10, 18, 12, 30, 0, 0, time.UTC))
	// Left behind by an earlier process started in the same second.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "battle_main_20261018_123000_001.png"), []byte("keep"), 0o644))

	e := NewExporter(dir, "main", fc, nil, zap.NewNop())
	a, err := e.Save(context.Background(), canvas.NewStore().Image(), 0, TriggerSave)
	require.NoError(t, err)
	assert.Equal(t, "battle_main_20261018_123000_002.png", a.Filename)
	assert.Equal(t, filepath.Join(dir, a.Filename), a.Path)

	kept, err := os.ReadFile(filepath.Join(dir, "battle_main_20261018_123000_001.png"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(kept))

	onDisk, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, a.Image, onDisk)
}

func TestExporter_WriteFailureKeepsImage(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	cat := NewMemoryCatalog()
	e := NewExporter(filepath.Join(blocker, "sub"), "main", clockwork.NewFakeClock(), cat, zap.NewNop())
	a, err := e.Save(context.Background(), canvas.NewStore().Image(), 0, TriggerEnd)
	require.Error(t, err)
	assert.NotEmpty(t, a.Image)
	assert.Empty(t, a.Path)
	assert.NotEmpty(t, a.Filename)

	listed, err := cat.List(context.Background(), "main")
	require.NoError(t, err)
	assert.Empty(t, listed, "nothing on disk, nothing recorded")
}

func TestGormCatalog_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	cat, err := OpenGormCatalog(dsn)
	require.NoError(t, err)
	defer cat.Close()

	session := "test-" + time.Now().Format("150405.000000")
	a := Artifact{Session: session, Filename: session + ".png", Trigger: TriggerEnd, Size: 10, CreatedAt: time.Now()}
	require.NoError(t, cat.Record(context.Background(), a))

	listed, err := cat.List(context.Background(), session)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, a.Filename, listed[0].Filename)
}
