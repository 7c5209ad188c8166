// handlers_parse_test.go - Tests for parse session handlers
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ict-visualizer/backend/internal/models"
	"github.com/ict-visualizer/backend/internal/testutil"
)

// MockSessionManager is a mock implementation for testing
type MockSessionManager struct {
	sessions map[string]*models.ParseSession
	boards   map[string][]*models.BoardLog
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{
		sessions: make(map[string]*models.ParseSession),
		boards:   make(map[string][]*models.BoardLog),
	}
}

func (m *MockSessionManager) StartBatchSession(fileIDs []string, filePaths []string) (*models.ParseSession, error) {
	session := &models.ParseSession{
		ID:     "test-session-123",
		FileID: fileIDs[0],
		Status: models.SessionStatusPending,
	}
	if len(fileIDs) > 1 {
		session.FileIDs = fileIDs
	}
	m.sessions[session.ID] = session
	return session, nil
}

func (m *MockSessionManager) GetSession(id string) (*models.ParseSession, bool) {
	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *MockSessionManager) TouchSession(id string) bool {
	_, ok := m.sessions[id]
	return ok
}

func (m *MockSessionManager) GetBoards(id string) ([]*models.BoardLog, bool) {
	if _, ok := m.sessions[id]; !ok {
		return nil, false
	}
	return m.boards[id], true
}

func (m *MockSessionManager) GetBoard(id string, index int) (*models.BoardLog, bool) {
	boards, ok := m.boards[id]
	if !ok || index < 0 || index >= len(boards) {
		return nil, false
	}
	return boards[index], true
}

// addCompleteSession seeds a finished session holding the given boards.
func (m *MockSessionManager) addCompleteSession(id string, boards ...*models.BoardLog) {
	m.sessions[id] = &models.ParseSession{
		ID:         id,
		Status:     models.SessionStatusComplete,
		Progress:   100,
		BoardCount: len(boards),
	}
	m.boards[id] = boards
}

func sampleBoard(dmc string) *models.BoardLog {
	return &models.BoardLog{
		Source:     "board.log",
		ProductID:  "588A",
		RevisionID: "B",
		DMC:        dmc,
		MotherDMC:  "P" + dmc,
		PanelIndex: 1,
		Status:     1,
		StatusText: "Failed",
		Passed:     false,
		TimeStart:  models.Timestamp(240115143000),
		TimeEnd:    models.Timestamp(240115143105),
		Tests: []models.Test{
			{Name: "pins", Type: models.TestTypePin, Outcome: models.OutcomePass, Limits: models.NoLimits()},
			{Name: "r100", Type: models.TestTypeResistor, Outcome: models.OutcomeFail, Value: 140.2,
				Limits: models.TwoPointLimits(110, 90)},
			{Name: "c617%1", Type: models.TestTypeCapacitor, Outcome: models.OutcomePass, Value: 4.9,
				Limits: models.TwoPointLimits(5.5, 4.5)},
		},
		Report:      "r100 measured high",
		FailedNodes: []string{"NODE_A"},
	}
}

func TestParseHandler_HandleStartParse(t *testing.T) {
	tests := []struct {
		name       string
		request    startParseRequest
		setupFiles map[string][]byte
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{
			name: "single file parse",
			request: startParseRequest{
				FileID: "file-1",
			},
			setupFiles: map[string][]byte{
				"file-1": []byte("log content"),
			},
			wantStatus: http.StatusAccepted,
			wantErr:    false,
		},
		{
			name: "multi file parse",
			request: startParseRequest{
				FileIDs: []string{"file-1", "file-2"},
			},
			setupFiles: map[string][]byte{
				"file-1": []byte("log1"),
				"file-2": []byte("log2"),
			},
			wantStatus: http.StatusAccepted,
			wantErr:    false,
		},
		{
			name:       "no file specified",
			request:    startParseRequest{},
			setupFiles: map[string][]byte{},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "file not found",
			request: startParseRequest{
				FileID: "non-existent",
			},
			setupFiles: map[string][]byte{},
			wantStatus: http.StatusNotFound,
			wantErr:    true,
			errCode:    "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			store := testutil.NewMockStorage()
			for id, data := range tt.setupFiles {
				store.AddFile(id, "test.log", data)
			}
			sessionMgr := NewMockSessionManager()
			handler := NewParseHandler(store, sessionMgr)

			e := echo.New()
			body, _ := json.Marshal(tt.request)
			req := httptest.NewRequest(http.MethodPost, "/api/parse", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			// Execute
			err := handler.HandleStartParse(c)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
					return
				}
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Status != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, apiErr.Status)
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if rec.Code != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}

				var response models.ParseSession
				if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
					t.Errorf("failed to unmarshal response: %v", err)
					return
				}
				if response.ID == "" {
					t.Error("expected non-empty session ID")
				}
			}
		})
	}
}

func TestParseHandler_HandleParseStatus(t *testing.T) {
	tests := []struct {
		name         string
		sessionID    string
		setupSession *models.ParseSession
		wantStatus   int
		wantErr      bool
		errCode      string
	}{
		{
			name:      "existing session",
			sessionID: "test-session-1",
			setupSession: &models.ParseSession{
				ID:     "test-session-1",
				Status: models.SessionStatusComplete,
			},
			wantStatus: http.StatusOK,
			wantErr:    false,
		},
		{
			name:       "missing session id",
			sessionID:  "",
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "non-existent session",
			sessionID:  "does-not-exist",
			wantStatus: http.StatusNotFound,
			wantErr:    true,
			errCode:    "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			store := testutil.NewMockStorage()
			sessionMgr := NewMockSessionManager()
			if tt.setupSession != nil {
				sessionMgr.sessions[tt.setupSession.ID] = tt.setupSession
			}
			handler := NewParseHandler(store, sessionMgr)

			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/parse/:sessionId/status", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("sessionId")
			c.SetParamValues(tt.sessionID)

			// Execute
			err := handler.HandleParseStatus(c)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
					return
				}
				apiErr, ok := err.(*APIError)
				if !ok {
					t.Errorf("expected APIError, got %T", err)
					return
				}
				if apiErr.Code != tt.errCode {
					t.Errorf("expected error code %s, got %s", tt.errCode, apiErr.Code)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if rec.Code != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}

				var response models.ParseSession
				if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
					t.Errorf("failed to unmarshal response: %v", err)
					return
				}
				if response.ID != tt.sessionID {
					t.Errorf("expected ID %s, got %s", tt.sessionID, response.ID)
				}
			}
		})
	}
}

func TestParseHandler_HandleSessionKeepAlive(t *testing.T) {
	tests := []struct {
		name         string
		sessionID    string
		setupSession *models.ParseSession
		wantStatus   int
		wantErr      bool
	}{
		{
			name:      "keep alive successful",
			sessionID: "test-session-1",
			setupSession: &models.ParseSession{
				ID: "test-session-1",
			},
			wantStatus: http.StatusNoContent,
			wantErr:    false,
		},
		{
			name:       "missing session id",
			sessionID:  "",
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
		},
		{
			name:       "session not found",
			sessionID:  "does-not-exist",
			wantStatus: http.StatusNotFound,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			store := testutil.NewMockStorage()
			sessionMgr := NewMockSessionManager()
			if tt.setupSession != nil {
				sessionMgr.sessions[tt.setupSession.ID] = tt.setupSession
			}
			handler := NewParseHandler(store, sessionMgr)

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/parse/:sessionId/keepalive", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			c.SetParamNames("sessionId")
			c.SetParamValues(tt.sessionID)

			// Execute
			err := handler.HandleSessionKeepAlive(c)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if rec.Code != tt.wantStatus {
					t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}
			}
		})
	}
}

func TestParseHandler_HandleListBoards(t *testing.T) {
	sessionMgr := NewMockSessionManager()
	sessionMgr.addCompleteSession("sess-1", sampleBoard("V001"), sampleBoard("V002"))
	handler := NewParseHandler(testutil.NewMockStorage(), sessionMgr)

	t.Run("lists board summaries", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/parse/:sessionId/boards", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("sessionId")
		c.SetParamValues("sess-1")

		if err := handler.HandleListBoards(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var summaries []models.BoardSummary
		if err := json.Unmarshal(rec.Body.Bytes(), &summaries); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if len(summaries) != 2 {
			t.Fatalf("expected 2 summaries, got %d", len(summaries))
		}
		if summaries[0].DMC != "V001" || summaries[1].DMC != "V002" {
			t.Errorf("unexpected DMCs: %s, %s", summaries[0].DMC, summaries[1].DMC)
		}
		if summaries[0].TestCount != 3 || summaries[0].FailedCount != 1 {
			t.Errorf("unexpected counts: %d tests, %d failed",
				summaries[0].TestCount, summaries[0].FailedCount)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/parse/:sessionId/boards", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("sessionId")
		c.SetParamValues("missing")

		err := handler.HandleListBoards(c)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "NOT_FOUND" {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})
}

func TestParseHandler_HandleGetBoard(t *testing.T) {
	sessionMgr := NewMockSessionManager()
	sessionMgr.addCompleteSession("sess-1", sampleBoard("V001"))
	handler := NewParseHandler(testutil.NewMockStorage(), sessionMgr)

	newContext := func(sessionID, index string) (echo.Context, *httptest.ResponseRecorder) {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/parse/:sessionId/boards/:index", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("sessionId", "index")
		c.SetParamValues(sessionID, index)
		return c, rec
	}

	t.Run("returns full board", func(t *testing.T) {
		c, rec := newContext("sess-1", "0")
		if err := handler.HandleGetBoard(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var board models.BoardLog
		if err := json.Unmarshal(rec.Body.Bytes(), &board); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if board.DMC != "V001" {
			t.Errorf("expected DMC V001, got %s", board.DMC)
		}
		if len(board.Tests) != 3 {
			t.Errorf("expected 3 tests, got %d", len(board.Tests))
		}
		if board.Report != "r100 measured high" {
			t.Errorf("unexpected report: %q", board.Report)
		}
	})

	t.Run("non-numeric index", func(t *testing.T) {
		c, _ := newContext("sess-1", "abc")
		err := handler.HandleGetBoard(c)
		if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "BAD_REQUEST" {
			t.Errorf("expected BAD_REQUEST, got %v", err)
		}
	})

	t.Run("index out of range", func(t *testing.T) {
		c, _ := newContext("sess-1", "5")
		err := handler.HandleGetBoard(c)
		if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "NOT_FOUND" {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})
}

func TestParseHandler_HandleGetBoardTests(t *testing.T) {
	sessionMgr := NewMockSessionManager()
	sessionMgr.addCompleteSession("sess-1", sampleBoard("V001"))
	handler := NewParseHandler(testutil.NewMockStorage(), sessionMgr)

	runRequest := func(t *testing.T, query string) (*httptest.ResponseRecorder, error) {
		t.Helper()
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/parse/:sessionId/boards/:index/tests"+query, nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("sessionId", "index")
		c.SetParamValues("sess-1", "0")
		return rec, handler.HandleGetBoardTests(c)
	}

	t.Run("no filter returns all", func(t *testing.T) {
		rec, err := runRequest(t, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var resp testsResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if resp.Total != 3 || len(resp.Tests) != 3 {
			t.Errorf("expected 3 tests, got total %d len %d", resp.Total, len(resp.Tests))
		}
	})

	t.Run("filter by outcome", func(t *testing.T) {
		rec, err := runRequest(t, "?outcome=fail")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var resp testsResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if resp.Total != 1 || resp.Tests[0].Name != "r100" {
			t.Errorf("expected only r100 to fail, got %+v", resp.Tests)
		}
	})

	t.Run("filter by name substring", func(t *testing.T) {
		rec, err := runRequest(t, "?name=c617")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var resp testsResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if resp.Total != 1 || resp.Tests[0].Name != "c617%1" {
			t.Errorf("expected c617%%1, got %+v", resp.Tests)
		}
	})

	t.Run("pagination clamps to range", func(t *testing.T) {
		rec, err := runRequest(t, "?page=2&pageSize=2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var resp testsResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
		if resp.Total != 3 || len(resp.Tests) != 1 {
			t.Errorf("expected page 2 to hold 1 of 3 tests, got %d of %d", len(resp.Tests), resp.Total)
		}
		if resp.Tests[0].Name != "c617%1" {
			t.Errorf("expected last test on page 2, got %s", resp.Tests[0].Name)
		}
	})

	t.Run("invalid outcome", func(t *testing.T) {
		_, err := runRequest(t, "?outcome=exploded")
		if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "VALIDATION_ERROR" {
			t.Errorf("expected VALIDATION_ERROR, got %v", err)
		}
	})
}

func TestParseHandler_HandleGetBoardReport(t *testing.T) {
	sessionMgr := NewMockSessionManager()
	sessionMgr.addCompleteSession("sess-1", sampleBoard("V001"))
	handler := NewParseHandler(testutil.NewMockStorage(), sessionMgr)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/parse/:sessionId/boards/:index/report", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("sessionId", "index")
	c.SetParamValues("sess-1", "0")

	if err := handler.HandleGetBoardReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "r100 measured high" {
		t.Errorf("unexpected report body: %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != echo.MIMETextPlainCharsetUTF8 {
		t.Errorf("expected plain text content type, got %s", ct)
	}
}

func TestParseHandler_HandleExportBoards(t *testing.T) {
	t.Run("exports complete session as msgpack", func(t *testing.T) {
		sessionMgr := NewMockSessionManager()
		sessionMgr.addCompleteSession("sess-1", sampleBoard("V001"), sampleBoard("V002"))
		handler := NewParseHandler(testutil.NewMockStorage(), sessionMgr)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/parse/:sessionId/export", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("sessionId")
		c.SetParamValues("sess-1")

		if err := handler.HandleExportBoards(c); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/x-msgpack" {
			t.Errorf("expected msgpack content type, got %s", ct)
		}

		var boards []*models.BoardLog
		if err := msgpack.Unmarshal(rec.Body.Bytes(), &boards); err != nil {
			t.Fatalf("failed to decode msgpack: %v", err)
		}
		if len(boards) != 2 || boards[0].DMC != "V001" || boards[1].DMC != "V002" {
			t.Errorf("unexpected boards: %+v", boards)
		}
	})

	t.Run("rejects incomplete session", func(t *testing.T) {
		sessionMgr := NewMockSessionManager()
		sessionMgr.sessions["sess-1"] = &models.ParseSession{
			ID:     "sess-1",
			Status: models.SessionStatusParsing,
		}
		handler := NewParseHandler(testutil.NewMockStorage(), sessionMgr)

		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/api/parse/:sessionId/export", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("sessionId")
		c.SetParamValues("sess-1")

		err := handler.HandleExportBoards(c)
		if apiErr, ok := err.(*APIError); !ok || apiErr.Code != "CONFLICT" {
			t.Errorf("expected CONFLICT, got %v", err)
		}
	})
}

func TestStartParseRequest_NormalizeFileIDs(t *testing.T) {
	tests := []struct {
		name     string
		request  startParseRequest
		expected []string
	}{
		{
			name:     "empty request",
			request:  startParseRequest{},
			expected: nil,
		},
		{
			name: "single file ID",
			request: startParseRequest{
				FileID: "file-1",
			},
			expected: []string{"file-1"},
		},
		{
			name: "multiple file IDs",
			request: startParseRequest{
				FileIDs: []string{"file-1", "file-2", "file-3"},
			},
			expected: []string{"file-1", "file-2", "file-3"},
		},
		{
			name: "both single and multiple - multiple takes precedence",
			request: startParseRequest{
				FileID:  "single-file",
				FileIDs: []string{"multi-1", "multi-2"},
			},
			expected: []string{"multi-1", "multi-2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.request.normalizeFileIDs()
			if len(result) != len(tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
				return
			}
			for i, v := range tt.expected {
				if result[i] != v {
					t.Errorf("expected %s at index %d, got %s", v, i, result[i])
				}
			}
		})
	}
}
