package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// BackupConfig controls the periodic audit database backup.
type BackupConfig struct {
	Dir           string
	Interval      time.Duration
	RetentionDays int
}

// Backup periodically copies the audit database aside and prunes old copies.
// The audit trail is the only local state worth keeping; everything else is
// re-derived from the upstream feed.
type Backup struct {
	dbPath string
	cfg    BackupConfig
	logger *zerolog.Logger
}

// NewBackup creates a backup runner for the database at dbPath.
func NewBackup(dbPath string, cfg BackupConfig, logger *zerolog.Logger) *Backup {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &Backup{dbPath: dbPath, cfg: cfg, logger: logger}
}

// Run performs an immediate backup, then repeats on the configured interval
// until the context is cancelled.
func (b *Backup) Run(ctx context.Context) {
	b.logger.Info().Str("dir", b.cfg.Dir).Dur("interval", b.cfg.Interval).Msg("audit backup started")

	if err := b.Perform(); err != nil {
		b.logger.Error().Err(err).Msg("initial audit backup failed")
	}

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Perform(); err != nil {
				b.logger.Error().Err(err).Msg("scheduled audit backup failed")
			}
			b.pruneOld()
		}
	}
}

// Perform copies the audit database into the backup directory.
func (b *Backup) Perform() error {
	if err := os.MkdirAll(b.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := fmt.Sprintf("audit_%s.db", time.Now().Format("20060102_150405"))
	dest := filepath.Join(b.cfg.Dir, name)

	src, err := os.Open(b.dbPath)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return err
	}
	b.logger.Info().Str("path", dest).Msg("audit backup written")
	return nil
}

func (b *Backup) pruneOld() {
	if b.cfg.RetentionDays <= 0 {
		return
	}

	files, err := os.ReadDir(b.cfg.Dir)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to read backup directory for pruning")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -b.cfg.RetentionDays)
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			b.logger.Info().Str("file", f.Name()).Msg("deleting expired audit backup")
			os.Remove(filepath.Join(b.cfg.Dir, f.Name()))
		}
	}
}
