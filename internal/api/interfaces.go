// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/ict-visualizer/backend/internal/models"
	"github.com/ict-visualizer/backend/internal/storage"
)

// FilesHandler handles log file upload and management operations
type FilesHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadRaw(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// ParseHandler handles parse sessions and their board results
type ParseHandler interface {
	HandleStartParse(c echo.Context) error
	HandleParseStatus(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleListBoards(c echo.Context) error
	HandleGetBoard(c echo.Context) error
	HandleGetBoardTests(c echo.Context) error
	HandleGetBoardReport(c echo.Context) error
	HandleExportBoards(c echo.Context) error
}

// BoardsHandler handles archive queries and analytics
type BoardsHandler interface {
	HandleRecentBoards(c echo.Context) error
	HandleSearchBoards(c echo.Context) error
	HandleProductYield(c echo.Context) error
	HandleTestHistory(c echo.Context) error
}

// RulesHandler handles the product rules document
type RulesHandler interface {
	HandleGetRules(c echo.Context) error
	HandleUpdateRules(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for session management
// This allows mocking in tests
type SessionManager interface {
	StartBatchSession(fileIDs []string, filePaths []string) (*models.ParseSession, error)
	GetSession(id string) (*models.ParseSession, bool)
	TouchSession(id string) bool
	GetBoards(id string) ([]*models.BoardLog, bool)
	GetBoard(id string, index int) (*models.BoardLog, bool)
}

// BoardArchive defines the interface for the persistent board archive
type BoardArchive interface {
	RecentBoards(ctx context.Context, limit int) ([]models.BoardSummary, error)
	FindByDMC(ctx context.Context, dmc string) ([]models.BoardSummary, error)
	TestHistory(ctx context.Context, name string, limit int) ([]storage.TestPoint, error)
	ProductYield(ctx context.Context, productID string) ([]storage.YieldStats, error)
	FailedOnlyOn(ctx context.Context, productID string, testNames []string) (int, error)
}
