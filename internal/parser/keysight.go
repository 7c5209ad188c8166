package parser

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/djherbis/times"

	"github.com/ict-visualizer/backend/internal/models"
)

// KeysightParser handles Keysight i3070 board test logs.
// Format: one or more brace-wrapped records per line, "{@TAG|field|field...}".
type KeysightParser struct{}

func NewKeysightParser() *KeysightParser {
	return &KeysightParser{}
}

func (p *KeysightParser) Name() string {
	return "keysight_ict"
}

func (p *KeysightParser) CanParse(filePath string) (bool, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)
	checked := 0
	matched := 0
	for scanner.Scan() && checked < 10 {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		checked++
		if pieces := SplitRecords(line); len(pieces) > 0 && strings.HasPrefix(pieces[0], "@") {
			matched++
		}
	}

	return checked > 0 && float64(matched)/float64(checked) >= 0.6, nil
}

func (p *KeysightParser) Parse(filePath string) (*models.BoardLog, []*models.ParseError, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	records := make([]Record, 0, 256)
	errors := make([]*models.ParseError, 0)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		for _, raw := range SplitRecords(scanner.Text()) {
			rec := Classify(raw, lineNum)
			if bad, ok := rec.(*ErrorRecord); ok {
				errors = append(errors, &models.ParseError{Line: lineNum, Content: raw, Reason: bad.Reason})
				continue
			}
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	forest := BuildForest(records)
	board, diags := Interpret(forest, filepath.Base(filePath), fileModTime(filePath))
	errors = append(errors, diags...)
	return board, errors, nil
}

// maxRecordLine bounds a single physical line; logs routinely join dozens
// of records on one line.
const maxRecordLine = 1024 * 1024

// fileModTime returns the file's modification time, used as the test time
// when the log carries no timestamps of its own.
func fileModTime(filePath string) time.Time {
	if ts, err := times.Stat(filePath); err == nil {
		return ts.ModTime()
	}
	if info, err := os.Stat(filePath); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}
