package audit

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupPerform(t *testing.T) {
	logger := zerolog.New(io.Discard)
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	require.NoError(t, os.WriteFile(dbPath, []byte("payload"), 0o644))

	dir := filepath.Join(t.TempDir(), "backups")
	b := NewBackup(dbPath, BackupConfig{Dir: dir}, &logger)
	require.NoError(t, b.Perform())

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestBackupPruneOld(t *testing.T) {
	logger := zerolog.New(io.Discard)
	dir := t.TempDir()

	stale := filepath.Join(dir, "audit_20200101_000000.db")
	fresh := filepath.Join(dir, "audit_fresh.db")
	require.NoError(t, os.WriteFile(stale, nil, 0o644))
	require.NoError(t, os.WriteFile(fresh, nil, 0o644))
	old := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(stale, old, old))

	b := NewBackup("unused", BackupConfig{Dir: dir, RetentionDays: 14}, &logger)
	b.pruneOld()

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
