package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/ict-visualizer/backend/internal/api"
	"github.com/ict-visualizer/backend/internal/config"
	"github.com/ict-visualizer/backend/internal/ingest"
	"github.com/ict-visualizer/backend/internal/logger"
	"github.com/ict-visualizer/backend/internal/models"
	"github.com/ict-visualizer/backend/internal/parser"
	"github.com/ict-visualizer/backend/internal/session"
	"github.com/ict-visualizer/backend/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the board log API server",
	Long: `Start the HTTP server backing the board log viewer.

Configuration is read from an XML file next to the executable (created with
defaults on first run). When the watcher is enabled, logs appearing in the
watched directory are parsed and archived automatically.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "path to the XML configuration file (default: ICTLogViewer.xml next to the executable)")
}

// configPathFromFlag resolves the configuration file location. Without an
// explicit flag the file lives next to the executable, matching how the
// viewer is deployed on tester PCs.
func configPathFromFlag(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return path, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), "ICTLogViewer.xml"), nil
}

func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, err := configPathFromFlag(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Init(cfg.Advanced.LogLevel)

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize session manager
	sessionMgr := session.NewManager()

	// Open the board archive unless disabled in config
	var boardStore *storage.BoardStore
	if cfg.Storage.EnableArchive {
		boardStore, err = storage.NewBoardStoreWithTuning(cfg.Storage.ArchiveDirectory,
			cfg.Advanced.DuckDBMemoryLimit, cfg.Advanced.DuckDBThreads)
		if err != nil {
			return fmt.Errorf("failed to open board archive: %w", err)
		}
		sessionMgr.SetArchiver(boardStore)
	}

	// Start background session cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessionMgr.CleanupOldSessions(time.Duration(cfg.Processing.SessionTimeoutMinutes) * time.Minute)
		}
	}()

	e := echo.New()
	e.HideBanner = true

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") ||
				strings.HasSuffix(path, "/keepalive") ||
				path == "/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
		LogLevel:          0,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.Contains(path, "/upload") ||
				strings.HasSuffix(path, "/export")
		},
		ErrorMessage: "Request timeout - query took too long",
	}))

	// Msgpack exports are already compact, skip compressing them
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Request().URL.Path, "/export")
		},
	}))

	// Body limit middleware
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := splitPatterns(cfg.Server.AllowOrigins)
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.SetupMiddleware(e)

	deps := &api.Dependencies{
		Store:      fileStore,
		SessionMgr: sessionMgr,
		RulesPath:  cfg.Storage.RulesFile,
		Version:    version,
	}
	// Leave the interface nil when the archive is disabled so handlers
	// answer 503 instead of calling through a nil store.
	if boardStore != nil {
		deps.Archive = boardStore
	}
	api.RegisterRoutes(e, api.NewHandlers(deps))

	// Start the auto-ingest watcher if configured
	var watcher *ingest.Watcher
	if cfg.Watcher.Enabled && cfg.Watcher.Directory != "" {
		var handler ingest.Handler
		if boardStore != nil {
			handler = func(board *models.BoardLog, parseErrors []*models.ParseError) {
				if err := boardStore.ArchiveBoard(board); err != nil {
					logger.Errorf("failed to archive board %s: %v", board.DMC, err)
				}
			}
		} else {
			logger.Warn("watcher enabled without archive; ingested boards are not retained")
		}

		watcher, err = ingest.New(ingest.Config{
			Dir:         cfg.Watcher.Directory,
			DebounceDur: time.Duration(cfg.Watcher.DebounceMillis) * time.Millisecond,
			Patterns:    splitPatterns(cfg.Watcher.Patterns),
		}, parser.GetGlobalRegistry(), handler)
		if err != nil {
			return fmt.Errorf("failed to configure watcher: %w", err)
		}
		if err := watcher.Start(); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
	}

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath)

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.StartServer(s)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if watcher != nil {
			watcher.Stop()
		}
		if boardStore != nil {
			boardStore.Close()
		}
		return err
	case sig := <-sigCh:
		logger.Infof("received %s, shutting down", sig)
	}

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Errorf("watcher stop: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}

	if boardStore != nil {
		if err := boardStore.Close(); err != nil {
			logger.Errorf("archive close: %v", err)
		}
	}

	return nil
}

func printBanner(cfg *config.AppConfig, configPath string) {
	archive := "disabled"
	if cfg.Storage.EnableArchive {
		archive = cfg.Storage.ArchiveDirectory
	}
	watch := "disabled"
	if cfg.Watcher.Enabled && cfg.Watcher.Directory != "" {
		watch = cfg.Watcher.Directory
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           ICT Board Test Log Viewer                       ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:  %-47s║\n", version)
	fmt.Printf("║  Config:   %-47s║\n", configPath)
	fmt.Printf("║  Listen:   http://%-40s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir: %-47s║\n", cfg.GetDataDir())
	fmt.Printf("║  Archive:  %-47s║\n", archive)
	fmt.Printf("║  Watch:    %-47s║\n", watch)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
