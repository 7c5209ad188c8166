package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ict-visualizer/backend/internal/logger"
	"github.com/ict-visualizer/backend/internal/models"
	"github.com/ict-visualizer/backend/internal/parser"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion
const MaxSessions = 10

// SessionMaxAge is how long to keep completed sessions before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

// ResultCacheTTL is how long parsed boards stay cached by content hash
const ResultCacheTTL = 30 * time.Minute

// BoardArchiver receives every freshly parsed board. Cached results are not
// re-archived.
type BoardArchiver interface {
	ArchiveBoard(board *models.BoardLog) error
}

// Manager handles active log parsing sessions.
type Manager struct {
	sessions map[string]*SessionState
	mu       sync.RWMutex
	registry *parser.Registry
	cache    *ResultCache
	archiver BoardArchiver
}

// SessionState holds the session metadata and its parsed boards.
type SessionState struct {
	Session      *models.ParseSession
	Boards       []*models.BoardLog
	LastAccessed time.Time
}

// NewManager creates a new session manager.
func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*SessionState),
		registry: parser.GetGlobalRegistry(),
		cache:    NewResultCache(ResultCacheTTL),
	}
}

// SetArchiver registers the archive sink for parsed boards.
func (m *Manager) SetArchiver(a BoardArchiver) {
	m.archiver = a
}

// StartSession begins the parsing process for a file.
func (m *Manager) StartSession(fileID, filePath string) (*models.ParseSession, error) {
	return m.StartBatchSession([]string{fileID}, []string{filePath})
}

// StartBatchSession begins the parsing process for multiple files, one board
// per file.
func (m *Manager) StartBatchSession(fileIDs, filePaths []string) (*models.ParseSession, error) {
	if len(fileIDs) == 0 || len(fileIDs) != len(filePaths) {
		return nil, fmt.Errorf("mismatched fileIDs and filePaths")
	}

	// Clean up old sessions if at limit
	m.cleanupOldSessionsIfNeeded()

	sessionID := uuid.New().String()

	session := models.NewParseSession(sessionID, fileIDs[0])
	if len(fileIDs) > 1 {
		session.FileIDs = fileIDs
	}
	session.Status = models.SessionStatusParsing

	state := &SessionState{
		Session:      session,
		LastAccessed: time.Now(),
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	m.mu.Unlock()

	// Run parsing in a background goroutine
	go m.runParse(sessionID, filePaths)

	return session, nil
}

func (m *Manager) runParse(sessionID string, filePaths []string) {
	// Recover from panics to prevent backend crash
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("parse %s: panic recovered: %v", sessionID[:8], r)
			m.updateSessionError(sessionID, fmt.Sprintf("parse panicked: %v", r))
		}
	}()

	start := time.Now()
	logger.Infof("parse %s: starting on %d file(s)", sessionID[:8], len(filePaths))

	boards := make([]*models.BoardLog, 0, len(filePaths))
	var allErrors []models.ParseError
	var parserName string
	cacheHits := 0

	for i, filePath := range filePaths {
		board, parseErrors, name, hit, err := m.parseOne(filePath)
		if err != nil {
			logger.Errorf("parse %s: file %d failed: %v", sessionID[:8], i, err)
			m.updateSessionError(sessionID, fmt.Sprintf("parse failed for file %d: %v", i, err))
			return
		}
		if hit {
			cacheHits++
		}
		if parserName == "" {
			parserName = name
		}

		boards = append(boards, board)
		for _, e := range parseErrors {
			if e != nil {
				allErrors = append(allErrors, *e)
			}
		}

		progress := float64(i+1) / float64(len(filePaths)) * 90.0
		m.mu.Lock()
		if state, ok := m.sessions[sessionID]; ok {
			state.Session.Progress = progress
		}
		m.mu.Unlock()
	}

	elapsed := time.Since(start).Milliseconds()

	testCount := 0
	failedBoards := 0
	for _, b := range boards {
		testCount += len(b.Tests)
		if !b.Passed {
			failedBoards++
		}
	}
	logger.Infof("parse %s: complete, %d board(s), %d test(s), %d error(s) in %dms",
		sessionID[:8], len(boards), testCount, len(allErrors), elapsed)

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Boards = boards
	state.Session.Status = models.SessionStatusComplete
	state.Session.Progress = 100
	state.Session.BoardCount = len(boards)
	state.Session.TestCount = testCount
	state.Session.FailedBoards = failedBoards
	state.Session.ProcessingTimeMs = elapsed
	state.Session.ParserName = parserName
	state.Session.CacheHits = cacheHits
	state.Session.Errors = allErrors
}

// parseOne parses a single file, going through the result cache.
func (m *Manager) parseOne(filePath string) (*models.BoardLog, []*models.ParseError, string, bool, error) {
	key, keyErr := FileKey(filePath)
	if keyErr == nil {
		if cached, ok := m.cache.Get(key); ok {
			return cached.Board, cached.Errors, "", true, nil
		}
	}

	p, err := m.registry.FindParser(filePath)
	if err != nil {
		return nil, nil, "", false, err
	}

	board, parseErrors, err := p.Parse(filePath)
	if err != nil {
		return nil, nil, "", false, err
	}

	if keyErr == nil {
		m.cache.Put(key, board, parseErrors)
	}
	if m.archiver != nil {
		if err := m.archiver.ArchiveBoard(board); err != nil {
			logger.Warnf("archive failed for %s: %v", board.Source, err)
		}
	}

	return board, parseErrors, p.Name(), false, nil
}

func (m *Manager) updateSessionError(sessionID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Session.Status = models.SessionStatusError
	state.Session.Errors = append(state.Session.Errors, models.ParseError{
		Reason: reason,
	})
}

// cleanupOldSessionsIfNeeded removes oldest completed sessions if at capacity
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < MaxSessions {
		return
	}

	var toDelete []string
	for id, state := range m.sessions {
		if state.Session.Status == models.SessionStatusComplete ||
			state.Session.Status == models.SessionStatusError {
			toDelete = append(toDelete, id)
		}
	}

	toFree := len(m.sessions) - MaxSessions + 1
	deleted := 0
	for _, id := range toDelete {
		if deleted >= toFree {
			break
		}
		delete(m.sessions, id)
		deleted++
		logger.Infof("cleaned up old session %s to free memory", id[:8])
	}
}

// CleanupOldSessions removes sessions older than maxAge,
// but keeps sessions that have been accessed within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	for id, state := range m.sessions {
		if state.Session.Status != models.SessionStatusComplete &&
			state.Session.Status != models.SessionStatusError {
			continue
		}

		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}

		sessionTime := state.LastAccessed
		if sessionTime.IsZero() {
			sessionTime = time.Now().Add(-maxAge - time.Hour)
		}

		if sessionTime.Before(cutoff) {
			delete(m.sessions, id)
			logger.Infof("cleaned up aged session %s (last accessed %s ago)",
				id[:8], time.Since(state.LastAccessed).Round(time.Second))
		}
	}
}

// GetSession returns a session by ID.
func (m *Manager) GetSession(id string) (*models.ParseSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return state.Session, true
}

// TouchSession updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// GetBoards returns all boards of a session.
func (m *Manager) GetBoards(id string) ([]*models.BoardLog, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return state.Boards, true
}

// GetBoard returns one board of a session by its position.
func (m *Manager) GetBoard(id string, index int) (*models.BoardLog, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || index < 0 || index >= len(state.Boards) {
		return nil, false
	}
	return state.Boards[index], true
}
