// handlers_rules.go - Product rules document handlers
package api

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ict-visualizer/backend/internal/models"
	"github.com/ict-visualizer/backend/internal/parser"
)

// RulesHandlerImpl implements the RulesHandler interface.
// The rules document lives as one YAML file on disk; the mutex serializes
// writers against readers.
type RulesHandlerImpl struct {
	rulesPath string
	mu        sync.RWMutex
}

// NewRulesHandler creates a new rules handler instance
func NewRulesHandler(rulesPath string) RulesHandler {
	return &RulesHandlerImpl{rulesPath: rulesPath}
}

// HandleGetRules returns the current product rules document.
// A missing file is an empty document, not an error.
func (h *RulesHandlerImpl) HandleGetRules(c echo.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rules, err := parser.ParseProductRules(h.rulesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return c.JSON(http.StatusOK, &models.ProductRules{Products: []models.ProductRule{}})
		}
		return NewInternalError("failed to load rules", err)
	}

	return c.JSON(http.StatusOK, rules)
}

// HandleUpdateRules replaces the rules document with the YAML request body
func (h *RulesHandlerImpl) HandleUpdateRules(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return NewBadRequestError("failed to read request body", err)
	}
	if len(body) == 0 {
		return NewValidationError("body")
	}

	rules, err := parser.ParseProductRulesFromBytes(body)
	if err != nil {
		return NewBadRequestError("invalid rules document", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := os.WriteFile(h.rulesPath, body, 0644); err != nil {
		return NewInternalError("failed to save rules", err)
	}

	return c.JSON(http.StatusOK, &models.RulesInfo{
		ID:           "product-rules",
		Name:         filepath.Base(h.rulesPath),
		UploadedAt:   time.Now().Format(time.RFC3339),
		ProductCount: len(rules.Products),
	})
}
