package models

import (
	"fmt"
	"strings"
)

// Placeholder values used when the log carries no batch/board-test header.
const (
	DefaultProductID  = "NoID"
	DefaultRevisionID = "NoRev"
	DefaultDMC        = "NoDMC"
	DefaultMotherDMC  = "NoMB"
)

// StatusText renders an equipment status code for humans.
func StatusText(status int32) string {
	switch status {
	case 0:
		return "Passed"
	case 1:
		return "Failed"
	case 2:
		return "Aborted"
	case 4:
		return "Untested"
	default:
		return fmt.Sprintf("Unknown status (%d)", status)
	}
}

// BoardLog is the normalized result of interpreting one ICT log file:
// board metadata, the flat test list, the board-wide report text, and the
// failure detail lists. It is built once and read-only afterward.
type BoardLog struct {
	Source     string `json:"source"`
	ProductID  string `json:"productId"`
	RevisionID string `json:"revisionId"`
	DMC        string `json:"dmc"`
	MotherDMC  string `json:"motherDmc"`
	PanelIndex int    `json:"panelIndex"`

	Status     int32  `json:"status"`
	StatusText string `json:"statusText"`
	Passed     bool   `json:"passed"`

	TimeStart Timestamp `json:"timeStart"`
	TimeEnd   Timestamp `json:"timeEnd"`

	Tests       []Test   `json:"tests"`
	Report      string   `json:"report"`
	FailedNodes []string `json:"failedNodes,omitempty"`
	FailedPins  []string `json:"failedPins,omitempty"`
}

// TestFilter selects tests by name substring and/or outcome.
// Zero values match everything.
type TestFilter struct {
	Name       string
	Outcome    Outcome
	FailedOnly bool
}

// FilterTests returns the tests matching the filter, in list order.
// The returned slice is freshly allocated so the model itself stays
// read-only to consumers.
func (b *BoardLog) FilterTests(f TestFilter) []Test {
	out := make([]Test, 0, len(b.Tests))
	needle := strings.ToLower(f.Name)
	for _, t := range b.Tests {
		if needle != "" && !strings.Contains(strings.ToLower(t.Name), needle) {
			continue
		}
		if f.Outcome != "" && t.Outcome != f.Outcome {
			continue
		}
		if f.FailedOnly && t.Outcome != OutcomeFail {
			continue
		}
		out = append(out, t)
	}
	return out
}

// FailedTestCount returns the number of failing tests.
func (b *BoardLog) FailedTestCount() int {
	n := 0
	for i := range b.Tests {
		if b.Tests[i].Outcome == OutcomeFail {
			n++
		}
	}
	return n
}

// BoardSummary is the compact listing form of a BoardLog.
type BoardSummary struct {
	Source      string    `json:"source"`
	ProductID   string    `json:"productId"`
	DMC         string    `json:"dmc"`
	MotherDMC   string    `json:"motherDmc"`
	PanelIndex  int       `json:"panelIndex"`
	Status      int32     `json:"status"`
	StatusText  string    `json:"statusText"`
	Passed      bool      `json:"passed"`
	TimeStart   Timestamp `json:"timeStart"`
	TimeEnd     Timestamp `json:"timeEnd"`
	TestCount   int       `json:"testCount"`
	FailedCount int       `json:"failedCount"`
}

// Summary derives the compact listing form.
func (b *BoardLog) Summary() BoardSummary {
	return BoardSummary{
		Source:      b.Source,
		ProductID:   b.ProductID,
		DMC:         b.DMC,
		MotherDMC:   b.MotherDMC,
		PanelIndex:  b.PanelIndex,
		Status:      b.Status,
		StatusText:  b.StatusText,
		Passed:      b.Passed,
		TimeStart:   b.TimeStart,
		TimeEnd:     b.TimeEnd,
		TestCount:   len(b.Tests),
		FailedCount: b.FailedTestCount(),
	}
}
