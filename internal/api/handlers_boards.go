// handlers_boards.go - Board archive and analytics handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ict-visualizer/backend/internal/models"
	"github.com/ict-visualizer/backend/internal/parser"
	"github.com/ict-visualizer/backend/internal/storage"
)

// BoardsHandlerImpl implements the BoardsHandler interface
type BoardsHandlerImpl struct {
	archive   BoardArchive
	rulesPath string
}

// NewBoardsHandler creates a new boards handler instance
func NewBoardsHandler(archive BoardArchive, rulesPath string) BoardsHandler {
	return &BoardsHandlerImpl{archive: archive, rulesPath: rulesPath}
}

// HandleRecentBoards returns the most recently archived boards
func (h *BoardsHandlerImpl) HandleRecentBoards(c echo.Context) error {
	if h.archive == nil {
		return NewServiceUnavailableError("board archive is disabled")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	boards, err := h.archive.RecentBoards(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to query archive", err)
	}

	return c.JSON(http.StatusOK, boards)
}

// HandleSearchBoards returns archived boards whose DMC contains the query
func (h *BoardsHandlerImpl) HandleSearchBoards(c echo.Context) error {
	if h.archive == nil {
		return NewServiceUnavailableError("board archive is disabled")
	}

	dmc := c.QueryParam("dmc")
	if dmc == "" {
		return NewValidationError("dmc")
	}

	boards, err := h.archive.FindByDMC(c.Request().Context(), dmc)
	if err != nil {
		return NewInternalError("failed to query archive", err)
	}

	return c.JSON(http.StatusOK, boards)
}

// HandleProductYield returns pass/fail counts per product. When a product
// rule carries an ignore list, boards that failed only on ignored tests are
// counted back into an adjusted yield.
func (h *BoardsHandlerImpl) HandleProductYield(c echo.Context) error {
	if h.archive == nil {
		return NewServiceUnavailableError("board archive is disabled")
	}

	product := c.QueryParam("product")

	stats, err := h.archive.ProductYield(c.Request().Context(), product)
	if err != nil {
		return NewInternalError("failed to query archive", err)
	}

	rules := h.loadRules()

	out := make([]yieldResponse, 0, len(stats))
	for _, st := range stats {
		resp := yieldResponse{
			YieldStats:    st,
			ProductName:   st.ProductID,
			AdjustedYield: st.Yield,
		}
		if rules != nil {
			resp.ProductName = rules.DisplayName(st.ProductID)
			if rule := rules.Lookup(st.ProductID); rule != nil && len(rule.IgnoreTests) > 0 && st.Failed > 0 {
				n, err := h.archive.FailedOnlyOn(c.Request().Context(), st.ProductID, rule.IgnoreTests)
				if err != nil {
					return NewInternalError("failed to query archive", err)
				}
				resp.IgnoredFailures = n
				if st.Boards > 0 {
					resp.AdjustedYield = float64(st.Passed+n) / float64(st.Boards)
				}
			}
		}
		out = append(out, resp)
	}

	return c.JSON(http.StatusOK, out)
}

// HandleTestHistory returns measurement history for one test name
func (h *BoardsHandlerImpl) HandleTestHistory(c echo.Context) error {
	if h.archive == nil {
		return NewServiceUnavailableError("board archive is disabled")
	}

	name := c.QueryParam("name")
	if name == "" {
		return NewValidationError("name")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	points, err := h.archive.TestHistory(c.Request().Context(), name, limit)
	if err != nil {
		return NewInternalError("failed to query archive", err)
	}

	return c.JSON(http.StatusOK, points)
}

// yieldResponse decorates the archive stats with rule-driven presentation.
type yieldResponse struct {
	storage.YieldStats
	ProductName     string  `json:"productName"`
	IgnoredFailures int     `json:"ignoredFailures"`
	AdjustedYield   float64 `json:"adjustedYield"`
}

// loadRules reads the rules document. No document means no decoration.
func (h *BoardsHandlerImpl) loadRules() *models.ProductRules {
	if h.rulesPath == "" {
		return nil
	}
	rules, err := parser.ParseProductRules(h.rulesPath)
	if err != nil {
		return nil
	}
	return rules
}
