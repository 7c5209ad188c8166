// handlers_parse.go - Parse session and board result handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ict-visualizer/backend/internal/models"
	"github.com/ict-visualizer/backend/internal/storage"
)

// ParseHandlerImpl implements the ParseHandler interface
type ParseHandlerImpl struct {
	store      storage.Store
	sessionMgr SessionManager
}

// NewParseHandler creates a new parse handler instance
func NewParseHandler(store storage.Store, sessionMgr SessionManager) ParseHandler {
	return &ParseHandlerImpl{
		store:      store,
		sessionMgr: sessionMgr,
	}
}

// HandleStartParse starts a new parsing session for one or more files
func (h *ParseHandlerImpl) HandleStartParse(c echo.Context) error {
	var req startParseRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	// Normalize to array of file IDs
	fileIDs := req.normalizeFileIDs()
	if len(fileIDs) == 0 {
		return NewValidationError("fileId or fileIds")
	}

	// Get file paths for all files
	filePaths, validFileIDs, err := h.resolveFilePaths(fileIDs)
	if err != nil {
		return err
	}

	// Start parsing session
	sess, err := h.sessionMgr.StartBatchSession(validFileIDs, filePaths)
	if err != nil {
		return NewInternalError("failed to start session", err)
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleParseStatus returns the current status of a parsing session
func (h *ParseHandlerImpl) HandleParseStatus(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	// Touch session to prevent cleanup while being viewed
	h.sessionMgr.TouchSession(id)

	return c.JSON(http.StatusOK, sess)
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *ParseHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if ok := h.sessionMgr.TouchSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleListBoards returns compact summaries of all boards in a session
func (h *ParseHandlerImpl) HandleListBoards(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	boards, ok := h.sessionMgr.GetBoards(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	summaries := make([]models.BoardSummary, 0, len(boards))
	for _, b := range boards {
		summaries = append(summaries, b.Summary())
	}

	return c.JSON(http.StatusOK, summaries)
}

// HandleGetBoard returns the full normalized result for one board
func (h *ParseHandlerImpl) HandleGetBoard(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	index, err := parseBoardIndex(c.Param("index"))
	if err != nil {
		return NewBadRequestError("invalid board index", err)
	}

	board, ok := h.sessionMgr.GetBoard(id, index)
	if !ok {
		return NewNotFoundError("board", c.Param("index"))
	}

	return c.JSON(http.StatusOK, board)
}

// HandleGetBoardTests returns filtered, paginated tests of one board
func (h *ParseHandlerImpl) HandleGetBoardTests(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	index, err := parseBoardIndex(c.Param("index"))
	if err != nil {
		return NewBadRequestError("invalid board index", err)
	}

	board, ok := h.sessionMgr.GetBoard(id, index)
	if !ok {
		return NewNotFoundError("board", c.Param("index"))
	}

	filter, err := buildTestFilter(c)
	if err != nil {
		return err
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize < 1 || pageSize > 1000 {
		pageSize = 100
	}

	tests := board.FilterTests(filter)
	total := len(tests)

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return c.JSON(http.StatusOK, testsResponse{
		Tests:    tests[start:end],
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

// HandleGetBoardReport returns the board report as plain text
func (h *ParseHandlerImpl) HandleGetBoardReport(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	index, err := parseBoardIndex(c.Param("index"))
	if err != nil {
		return NewBadRequestError("invalid board index", err)
	}

	board, ok := h.sessionMgr.GetBoard(id, index)
	if !ok {
		return NewNotFoundError("board", c.Param("index"))
	}

	return c.String(http.StatusOK, board.Report)
}

// HandleExportBoards returns every board of a completed session as one
// MessagePack blob
func (h *ParseHandlerImpl) HandleExportBoards(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	if sess.Status != models.SessionStatusComplete {
		return NewConflictError("session is not complete")
	}

	boards, ok := h.sessionMgr.GetBoards(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	data, err := msgpack.Marshal(boards)
	if err != nil {
		return NewInternalError("failed to encode boards", err)
	}

	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

// Request/Response types

type startParseRequest struct {
	FileID  string   `json:"fileId"`
	FileIDs []string `json:"fileIds"`
}

func (r *startParseRequest) normalizeFileIDs() []string {
	if len(r.FileIDs) > 0 {
		return r.FileIDs
	}
	if r.FileID != "" {
		return []string{r.FileID}
	}
	return nil
}

type testsResponse struct {
	Tests    []models.Test `json:"tests"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
	Total    int           `json:"total"`
}

// Helper methods

func (h *ParseHandlerImpl) resolveFilePaths(fileIDs []string) ([]string, []string, error) {
	var filePaths []string
	var validFileIDs []string

	for _, fid := range fileIDs {
		info, err := h.store.Get(fid)
		if err != nil {
			return nil, nil, NewNotFoundError("file", fid)
		}

		path, err := h.store.GetFilePath(fid)
		if err != nil {
			return nil, nil, NewInternalError("failed to get file path", err)
		}

		validFileIDs = append(validFileIDs, info.ID)
		filePaths = append(filePaths, path)
	}

	return filePaths, validFileIDs, nil
}

func buildTestFilter(c echo.Context) (models.TestFilter, error) {
	filter := models.TestFilter{
		Name:       c.QueryParam("name"),
		FailedOnly: c.QueryParam("failedOnly") == "true",
	}

	switch outcome := c.QueryParam("outcome"); outcome {
	case "":
	case string(models.OutcomePass):
		filter.Outcome = models.OutcomePass
	case string(models.OutcomeFail):
		filter.Outcome = models.OutcomeFail
	case string(models.OutcomeIndeterminate):
		filter.Outcome = models.OutcomeIndeterminate
	default:
		return filter, NewValidationError("outcome")
	}

	return filter, nil
}

func parseBoardIndex(s string) (int, error) {
	return strconv.Atoi(s)
}
