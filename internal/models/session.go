package models

// SessionStatus represents the status of a parse session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusParsing  SessionStatus = "parsing"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
)

// ParseSession represents one load of one or more log files.
type ParseSession struct {
	ID               string        `json:"id"`
	FileID           string        `json:"fileId"`
	FileIDs          []string      `json:"fileIds,omitempty"` // all file IDs for batch sessions
	Status           SessionStatus `json:"status"`
	Progress         float64       `json:"progress"` // 0-100
	BoardCount       int           `json:"boardCount,omitempty"`
	TestCount        int           `json:"testCount,omitempty"`
	FailedBoards     int           `json:"failedBoards,omitempty"`
	ProcessingTimeMs int64         `json:"processingTimeMs,omitempty"`
	ParserName       string        `json:"parserName,omitempty"`
	CacheHits        int           `json:"cacheHits,omitempty"`
	Errors           []ParseError  `json:"errors,omitempty"`
}

// ParseError represents a non-fatal problem encountered during parsing.
type ParseError struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// NewParseSession creates a new ParseSession in pending status.
func NewParseSession(id, fileID string) *ParseSession {
	return &ParseSession{
		ID:       id,
		FileID:   fileID,
		Status:   SessionStatusPending,
		Progress: 0,
		Errors:   make([]ParseError, 0),
	}
}
