package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ict-visualizer/backend/internal/models"
	"github.com/ict-visualizer/backend/internal/parser"
)

const sampleLog = `{@BATCH|588A|B|05|1|Standard|ICT|B01|op7|ct01|tp588|2|panel588|A
{@BTEST|V123456789|0|240115143000|65|0|2|2|0|0|240115143105|00|1
{@A-RES|0|99.7|5%r100}{@LIM2|110|90}}
`

func makeLog(dmc string) string {
	return strings.Replace(sampleLog, "V123456789", dmc, 1)
}

// boardSink collects ingested boards for assertions.
type boardSink struct {
	mu     sync.Mutex
	boards []*models.BoardLog
}

func (s *boardSink) handle(board *models.BoardLog, _ []*models.ParseError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards = append(s.boards, board)
}

func (s *boardSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.boards)
}

func (s *boardSink) last() *models.BoardLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.boards) == 0 {
		return nil
	}
	return s.boards[len(s.boards)-1]
}

func startWatcher(t *testing.T, dir string, debounce time.Duration) (*Watcher, *boardSink) {
	t.Helper()
	sink := &boardSink{}
	w, err := New(Config{Dir: dir, DebounceDur: debounce}, parser.NewRegistry(), sink.handle)
	require.NoError(t, err, "failed to create watcher")
	require.NoError(t, w.Start(), "failed to start watcher")
	t.Cleanup(func() { _ = w.Stop() })
	return w, sink
}

func waitForBoards(t *testing.T, sink *boardSink, want int) {
	t.Helper()
	for i := 0; i < 60; i++ {
		if sink.count() >= want {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d boards, got %d", want, sink.count())
}

func TestWatcherIngestsNewFile(t *testing.T) {
	dir := t.TempDir()
	_, sink := startWatcher(t, dir, 50*time.Millisecond)

	err := os.WriteFile(filepath.Join(dir, "board.log"), []byte(sampleLog), 0644)
	require.NoError(t, err, "failed to write log")

	waitForBoards(t, sink, 1)

	board := sink.last()
	require.Equal(t, "588A", board.ProductID)
	require.Equal(t, "V123456789", board.DMC)
	require.True(t, board.Passed)
	require.Len(t, board.Tests, 2)
	require.Equal(t, "r100", board.Tests[1].Name)
}

func TestWatcherDebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.log")
	_, sink := startWatcher(t, dir, 250*time.Millisecond)

	// Ten rapid rewrites should coalesce into one parse of the final
	// content. Late file system events re-fire the timer, but the file
	// hash is unchanged by then, so the duplicate check absorbs them.
	for i := 0; i < 10; i++ {
		content := makeLog(fmt.Sprintf("V%09d", i))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		time.Sleep(5 * time.Millisecond)
	}

	waitForBoards(t, sink, 1)
	time.Sleep(400 * time.Millisecond)

	count := sink.count()
	require.GreaterOrEqual(t, count, 1, "expected at least one ingest")
	require.LessOrEqual(t, count, 3, "expected debouncing to coalesce writes (got %d ingests for 10 writes)", count)
	require.Equal(t, "V000000009", sink.last().DMC, "expected the final content to win")
}

func TestWatcherSkipsDuplicateContent(t *testing.T) {
	dir := t.TempDir()
	_, sink := startWatcher(t, dir, 50*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "first.log"), []byte(sampleLog), 0644))
	waitForBoards(t, sink, 1)

	// A second file with identical bytes is the same board re-dropped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy.log"), []byte(sampleLog), 0644))
	time.Sleep(300 * time.Millisecond)

	require.Equal(t, 1, sink.count(), "expected identical content to be skipped")
}

func TestWatcherIgnoresUnmatchedFiles(t *testing.T) {
	dir := t.TempDir()
	_, sink := startWatcher(t, dir, 50*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(sampleLog), 0644))
	time.Sleep(300 * time.Millisecond)

	require.Equal(t, 0, sink.count(), "expected non-matching files to be ignored")
}

func TestWatcherStop(t *testing.T) {
	dir := t.TempDir()
	w, err := New(DefaultConfig(dir), parser.NewRegistry(), nil)
	require.NoError(t, err, "failed to create watcher")
	require.NoError(t, w.Start(), "failed to start watcher")

	done := make(chan struct{})
	go func() {
		require.NoError(t, w.Stop(), "Stop returned error")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		require.Fail(t, "Stop() timed out")
	}

	// Stop is idempotent.
	require.NoError(t, w.Stop())
}

func TestWatcherStopBeforeStart(t *testing.T) {
	w, err := New(DefaultConfig(t.TempDir()), parser.NewRegistry(), nil)
	require.NoError(t, err)
	require.NoError(t, w.Stop())
}

func TestWatcherRequiresDir(t *testing.T) {
	_, err := New(Config{}, parser.NewRegistry(), nil)
	require.Error(t, err, "expected error for missing directory")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/var/logs")
	require.Equal(t, "/var/logs", cfg.Dir)
	require.Equal(t, 500*time.Millisecond, cfg.DebounceDur)
	require.Equal(t, []string{"*.log"}, cfg.Patterns)
}
