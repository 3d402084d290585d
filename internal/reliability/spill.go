package reliability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"rask-log-pipeline/internal/model"
)

// SpillConfig tunes the disk fallback directory, quota, and retention.
type SpillConfig struct {
	Enabled        bool
	Path           string
	MaxDiskUsageMB int64
	RetentionHours int
	Compression    bool
}

// spillMeta is the .meta sidecar written alongside a spilled batch.
type spillMeta struct {
	BatchID     string    `json:"batch_id"`
	BatchType   string    `json:"batch_type"`
	EntryCount  int       `json:"entry_count"`
	ContentType string    `json:"content_type"`
	SpilledAt   time.Time `json:"spilled_at"`
}

// ErrQuotaExceeded is returned by Spill when writing the batch would push
// the spill directory's total size over MaxDiskUsageMB; the caller must
// count this as a permanent loss rather than retry the write.
var ErrQuotaExceeded = fmt.Errorf("reliability: disk fallback quota exceeded")

// Spool manages the day-partitioned spill directory: atomic write-then-
// rename on fallback, and scan-and-replay in age order.
type Spool struct {
	cfg SpillConfig
}

// NewSpool constructs a Spool. It does not check cfg.Path: with an empty
// Path, Spill creates its day directories relative to the working directory.
func NewSpool(cfg SpillConfig) *Spool {
	return &Spool{cfg: cfg}
}

func (s *Spool) dayDir(now time.Time) string {
	return filepath.Join(s.cfg.Path, now.UTC().Format("2006-01-02"))
}

// Spill atomically persists a batch's serialized payload under the spill
// directory, enforcing the disk quota.
func (s *Spool) Spill(batch *model.Batch, contentType string, payload []byte, now time.Time) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("reliability: disk fallback disabled")
	}

	used, err := s.diskUsageBytes()
	if err != nil {
		return fmt.Errorf("reliability: measure disk usage: %w", err)
	}
	quotaBytes := s.cfg.MaxDiskUsageMB * 1024 * 1024
	if quotaBytes > 0 && used+int64(len(payload)) > quotaBytes {
		return ErrQuotaExceeded
	}

	dir := s.dayDir(now)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("reliability: mkdir spill dir: %w", err)
	}

	finalPath := filepath.Join(dir, batch.ID()+".batch")
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, payload, 0o644); err != nil {
		return fmt.Errorf("reliability: write spill tmp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("reliability: rename spill file: %w", err)
	}

	meta := spillMeta{
		BatchID:     batch.ID(),
		BatchType:   string(batch.Type()),
		EntryCount:  batch.Size(),
		ContentType: contentType,
		SpilledAt:   now,
	}
	metaBytes, err := json.Marshal(meta)
	if err == nil {
		_ = os.WriteFile(finalPath+".meta", metaBytes, 0o644)
	}

	return nil
}

// SpilledFile describes one file discovered during a replay scan.
type SpilledFile struct {
	Path        string
	Meta        spillMeta
	Age         time.Duration
}

// Scan lists spilled batches in oldest-first order, deleting (without
// replay) any file older than RetentionHours.
func (s *Spool) Scan(now time.Time) ([]SpilledFile, error) {
	var found []SpilledFile
	retention := time.Duration(s.cfg.RetentionHours) * time.Hour

	err := filepath.Walk(s.cfg.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || filepath.Ext(path) != ".batch" {
			return nil
		}

		age := now.Sub(info.ModTime())
		if s.cfg.RetentionHours > 0 && age > retention {
			os.Remove(path)
			os.Remove(path + ".meta")
			return nil
		}

		var meta spillMeta
		if raw, err := os.ReadFile(path + ".meta"); err == nil {
			_ = json.Unmarshal(raw, &meta)
		}

		found = append(found, SpilledFile{Path: path, Meta: meta, Age: age})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reliability: scan spill dir: %w", err)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Age > found[j].Age })
	return found, nil
}

// Remove deletes a spilled batch's payload and sidecar, called after a
// successful replay.
func (s *Spool) Remove(f SpilledFile) {
	os.Remove(f.Path)
	os.Remove(f.Path + ".meta")
}

func (s *Spool) diskUsageBytes() (int64, error) {
	var total int64
	err := filepath.Walk(s.cfg.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	return total, nil
}

// WatchExternalRemovals watches the spill directory and its day
// subdirectories and logs every removed spilled batch file - including ones
// taken by a manual rm, an external retention job, or a reclaimed mounted
// volume - so a concurrent ReplayOnce scan that raced the removal is
// understood rather than silently producing a "file vanished mid-read"
// warning. It does not tell deletions made by Remove apart from external
// ones. It blocks until ctx is cancelled; safe to run even when cfg.Enabled
// is false, as a no-op.
func (s *Spool) WatchExternalRemovals(ctx context.Context, logger *logrus.Logger) error {
	if !s.cfg.Enabled {
		<-ctx.Done()
		return nil
	}

	if err := os.MkdirAll(s.cfg.Path, 0o755); err != nil {
		return fmt.Errorf("reliability: mkdir spill dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("reliability: new fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.cfg.Path); err != nil {
		return fmt.Errorf("reliability: watch spill dir: %w", err)
	}
	// Batches live in day subdirectories and fsnotify does not recurse, so
	// each existing and newly created day directory is watched too.
	if entries, err := os.ReadDir(s.cfg.Path); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				_ = watcher.Add(filepath.Join(s.cfg.Path, e.Name()))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if event.Op&fsnotify.Remove != 0 && filepath.Ext(event.Name) == ".batch" {
				logger.WithField("path", event.Name).Debug("reliability: spilled batch removed externally")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("reliability: spill directory watch error")
		}
	}
}
