package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type MemoryCatalog struct {
	mu        sync.Mutex
	artifacts []Artifact
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{}
}

func (c *MemoryCatalog) Record(_ context.Context, a Artifact) error {
	a.Image = nil
	c.mu.Lock()
	c.artifacts = append(c.artifacts, a)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCatalog) List(_ context.Context, session string) ([]Artifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := []Artifact{}
	for _, a := range c.artifacts {
		if a.Session == session {
			out = append(out, a)
		}
	}
	return out, nil
}

type artifactRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Session   string `gorm:"size:64;index"`
	Filename  string `gorm:"size:255;uniqueIndex"`
	Path      string `gorm:"size:1024"`
	Trigger   string `gorm:"size:16"`
	Size      int
	Pixels    int
	CreatedAt time.Time
}

func (artifactRecord) TableName() string { return "battle_artifacts" }

// GormCatalog keeps the artifact list in Postgres. Only metadata is stored;
// the PNG itself stays on disk.
type GormCatalog struct {
	db *gorm.DB
}

func OpenGormCatalog(dsn string) (*GormCatalog, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	return NewGormCatalog(db)
}

func NewGormCatalog(db *gorm.DB) (*GormCatalog, error) {
	if err := db.AutoMigrate(&artifactRecord{}); err != nil {
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return &GormCatalog{db: db}, nil
}

func (c *GormCatalog) Record(ctx context.Context, a Artifact) error {
	rec := artifactRecord{
		Session:   a.Session,
		Filename:  a.Filename,
		Path:      a.Path,
		Trigger:   string(a.Trigger),
		Size:      a.Size,
		Pixels:    a.Pixels,
		CreatedAt: a.CreatedAt,
	}
	if err := c.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert artifact %s: %w", a.Filename, err)
	}
	return nil
}

func (c *GormCatalog) List(ctx context.Context, session string) ([]Artifact, error) {
	var recs []artifactRecord
	err := c.db.WithContext(ctx).
		Where("session = ?", session).
		Order("id").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	out := make([]Artifact, 0, len(recs))
	for _, r := range recs {
		out = append(out, Artifact{
			Session:   r.Session,
			Filename:  r.Filename,
			Path:      r.Path,
			Trigger:   Trigger(r.Trigger),
			Size:      r.Size,
			Pixels:    r.Pixels,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

func (c *GormCatalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
