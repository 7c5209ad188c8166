// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/ict-visualizer/backend/internal/session"
	"github.com/ict-visualizer/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store      storage.Store
	SessionMgr *session.Manager
	Archive    BoardArchive
	RulesPath  string
	Version    string
}

// Handlers holds all handler instances
type Handlers struct {
	Health HealthHandler
	Files  FilesHandler
	Parse  ParseHandler
	Boards BoardsHandler
	Rules  RulesHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health: NewHealthHandler(deps.Version),
		Files:  NewFilesHandler(deps.Store),
		Parse:  NewParseHandler(deps.Store, deps.SessionMgr),
		Boards: NewBoardsHandler(deps.Archive, deps.RulesPath),
		Rules:  NewRulesHandler(deps.RulesPath),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	// File management routes
	fileGroup := e.Group("/api/files")
	fileGroup.POST("/upload", handlers.Files.HandleUploadFile)
	fileGroup.POST("/upload/raw", handlers.Files.HandleUploadRaw)
	fileGroup.GET("/recent", handlers.Files.HandleGetRecentFiles)
	fileGroup.GET("/:id", handlers.Files.HandleGetFile)
	fileGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)
	fileGroup.PUT("/:id", handlers.Files.HandleRenameFile)

	// Parse session routes
	parseGroup := e.Group("/api/parse")
	parseGroup.POST("", handlers.Parse.HandleStartParse)
	parseGroup.GET("/:sessionId/status", handlers.Parse.HandleParseStatus)
	parseGroup.POST("/:sessionId/keepalive", handlers.Parse.HandleSessionKeepAlive)
	parseGroup.GET("/:sessionId/boards", handlers.Parse.HandleListBoards)
	parseGroup.GET("/:sessionId/boards/:index", handlers.Parse.HandleGetBoard)
	parseGroup.GET("/:sessionId/boards/:index/tests", handlers.Parse.HandleGetBoardTests)
	parseGroup.GET("/:sessionId/boards/:index/report", handlers.Parse.HandleGetBoardReport)
	parseGroup.GET("/:sessionId/export", handlers.Parse.HandleExportBoards)

	// Archive routes
	boardGroup := e.Group("/api/boards")
	boardGroup.GET("/recent", handlers.Boards.HandleRecentBoards)
	boardGroup.GET("/search", handlers.Boards.HandleSearchBoards)

	// Analytics routes
	analyticsGroup := e.Group("/api/analytics")
	analyticsGroup.GET("/yield", handlers.Boards.HandleProductYield)
	analyticsGroup.GET("/tests", handlers.Boards.HandleTestHistory)

	// Product rules routes
	e.GET("/api/rules", handlers.Rules.HandleGetRules)
	e.POST("/api/rules", handlers.Rules.HandleUpdateRules)
}

// SetupMiddleware configures the API error envelope
// Usage: api.SetupMiddleware(e) before RegisterRoutes
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
