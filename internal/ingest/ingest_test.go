package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/people-extractor/constants"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestIngestDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "team.txt"), "Jane Doe, CTO")
	writeFile(t, filepath.Join(root, "sub", "copy.md"), "Jane Doe, CTO")
	writeFile(t, filepath.Join(root, "sub", "board.csv"), "name,email\nBob,bob@x.com")
	writeFile(t, filepath.Join(root, "notes.docx"), "ignored")
	writeFile(t, filepath.Join(root, ".hidden", "secret.txt"), "Eve")
	writeFile(t, filepath.Join(root, ".draft.txt"), "Mallory")

	var handled []File
	ing := NewIngestor(Options{SkipHidden: true}, nil)
	results, stats, err := ing.IngestDirectory(context.Background(), root, func(_ context.Context, f File) error {
		handled = append(handled, f)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, handled, 2)
	names := []string{filepath.Base(handled[0].Path), filepath.Base(handled[1].Path)}
	sort.Strings(names)
	// WalkDir is lexical: sub/board.csv, sub/copy.md, team.txt; copy.md is the
	// first holder of the repeated content.
	assert.Equal(t, []string{"board.csv", "copy.md"}, names)
	for _, f := range handled {
		assert.Equal(t, constants.TXT, f.Kind)
		assert.Len(t, f.HashHex, 64)
	}

	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Equal(t, uint32(1), stats.Deduplicated)
	assert.Equal(t, uint32(0), stats.Failed)
	require.Len(t, results, 3)
	assert.True(t, results[2].Deduplicated)
	assert.Equal(t, "team.txt", filepath.Base(results[2].Path))
}

func TestIngestDirectoryHandlerFailureAndFilters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	writeFile(t, filepath.Join(root, "b.pdf"), "%PDF")
	writeFile(t, filepath.Join(root, "big.txt"), "0123456789abcdef")

	ing := NewIngestor(Options{IncludeExts: []string{".TXT"}, MaxFileSize: 8}, nil)
	results, stats, err := ing.IngestDirectory(context.Background(), root, func(_ context.Context, f File) error {
		return errors.New("queue full")
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), stats.Matched)
	assert.Equal(t, uint32(2), stats.Failed)
	require.Len(t, results, 2)
	assert.Equal(t, "queue full", results[0].Err)
	assert.Contains(t, results[1].Err, "limit 8")
}

func TestIngestDirectoryCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewIngestor(Options{}, nil).IngestDirectory(ctx, root, func(context.Context, File) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	_, _, err = NewIngestor(Options{}, nil).IngestDirectory(context.Background(), " ", nil)
	require.Error(t, err)
}

func TestInspect(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "scan.PNG")
	writeFile(t, path, "img")

	f, err := NewIngestor(Options{}, nil).Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, constants.IMAGE, f.Kind)
	assert.Equal(t, int64(3), f.Size)

	_, err = NewIngestor(Options{}, nil).Inspect(filepath.Join(root, "x.exe"))
	require.Error(t, err)
}

func TestWatchEmitsInitialAndNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.txt"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, SkipHidden: true, Debounce: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	next := func() string {
		t.Helper()
		select {
		case p := <-events:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("no watch event")
			return ""
		}
	}
	assert.Equal(t, "existing.txt", filepath.Base(next()))

	require.NoError(t, os.Mkdir(filepath.Join(root, "inbox"), 0o755))
	// give the watcher a moment to register the new directory
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(root, ".tmp.txt"), "skip")
	writeFile(t, filepath.Join(root, "inbox", "new.csv"), "b")
	assert.Equal(t, "new.csv", filepath.Base(next()))

	cancel()
	for range events {
	}
}

func TestWatchRequiresRoots(t *testing.T) {
	_, _, err := Watch(context.Background(), WatchConfig{}, nil)
	require.Error(t, err)
}
