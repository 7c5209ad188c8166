package parser

import (
	"github.com/ict-visualizer/backend/internal/models"
)

// Parser defines the interface for board test log parsers.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// CanParse returns true if this parser can handle the given file.
	CanParse(filePath string) (bool, error)
	// Parse parses the entire file and returns the board result.
	Parse(filePath string) (*models.BoardLog, []*models.ParseError, error)
}
