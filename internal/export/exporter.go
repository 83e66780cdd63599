// Package export turns a canvas image into PNG artifacts on disk and keeps a
// catalog of what was written.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrNoImage = errors.New("no image to export")

type Trigger string

const (
	TriggerSave Trigger = "save"
	TriggerEnd  Trigger = "end"
)

type Artifact struct {
	Session   string
	Filename  string
	Path      string
	Trigger   Trigger
	Size      int
	Pixels    int
	CreatedAt time.Time

	// Image holds the encoded PNG; catalogs do not store it.
	Image []byte
}

type Catalog interface {
	Record(ctx context.Context, a Artifact) error
	List(ctx context.Context, session string) ([]Artifact, error)
}

// Encode renders img as PNG. The encoder settings are fixed so the same
// image always produces the same bytes.
func Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, ErrNoImage
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

type Exporter struct {
	dir     string
	session string
	clock   clockwork.Clock
	catalog Catalog
	logger  *zap.Logger

	mu  sync.Mutex
	seq int
}

func NewExporter(dir, session string, clock clockwork.Clock, catalog Catalog, logger *zap.Logger) *Exporter {
	if catalog == nil {
		catalog = NewMemoryCatalog()
	}
	return &Exporter{
		dir:     dir,
		session: session,
		clock:   clock,
		catalog: catalog,
		logger:  logger,
	}
}

// Save encodes img, writes it to a new file and records it in the catalog.
// Files are never overwritten: names carry a timestamp and a sequence number,
// and a name already taken on disk moves on to the next number.
//
// If the file cannot be written the returned artifact still carries the
// encoded image, alongside the error.
func (e *Exporter) Save(ctx context.Context, img image.Image, pixels int, trigger Trigger) (Artifact, error) {
	data, err := Encode(img)
	if err != nil {
		return Artifact{}, err
	}

	now := e.clock.Now()
	a := Artifact{
		Session:   e.session,
		Filename:  e.nextName(now),
		Trigger:   trigger,
		Size:      len(data),
		Pixels:    pixels,
		CreatedAt: now,
		Image:     data,
	}

	if e.dir != "" {
		path, err := e.writeNew(now, &a)
		if err != nil {
			return a, fmt.Errorf("export %s: %w", a.Filename, err)
		}
		a.Path = path
	}

	if err := e.catalog.Record(ctx, a); err != nil {
		// The file is already on disk; a missing catalog entry is not fatal.
		e.logger.Error("record artifact", zap.String("file", a.Filename), zap.Error(err))
	}

	e.logger.Info("canvas exported",
		zap.String("file", a.Filename),
		zap.String("trigger", string(trigger)),
		zap.Int("bytes", a.Size),
		zap.Int("pixels", pixels))
	return a, nil
}

func (e *Exporter) Catalog() Catalog { return e.catalog }

func (e *Exporter) nextName(now time.Time) string {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.mu.Unlock()
	return fmt.Sprintf("battle_%s_%s_%03d.png", e.session, now.UTC().Format("20060102_150405"), seq)
}

// maxNameAttempts bounds how many taken names writeNew skips, e.g. files
// left by an earlier process started in the same second.
const maxNameAttempts = 1000

func (e *Exporter) writeNew(now time.Time, a *Artifact) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	for i := 0; ; i++ {
		path := filepath.Join(e.dir, a.Filename)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) && i < maxNameAttempts {
			a.Filename = e.nextName(now)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", a.Filename, err)
		}
		if _, err := f.Write(a.Image); err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write %s: %w", a.Filename, err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("close %s: %w", a.Filename, err)
		}
		return path, nil
	}
}
