package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ict-visualizer/backend/internal/logger"
	"github.com/ict-visualizer/backend/internal/models"
)

// Interpret reduces a classified forest into the normalized board model in
// one pass. Structural and semantic problems degrade to defaults and come
// back as accumulated parse errors; nothing here aborts the load.
//
// modTime is the source file's modification time, used when the log itself
// carries no start time. A zero modTime leaves the timestamps at zero.
func Interpret(forest []*Node, source string, modTime time.Time) (*models.BoardLog, []*models.ParseError) {
	it := &interpreter{
		intern: GetGlobalIntern(),
		board: &models.BoardLog{
			Source:     source,
			ProductID:  models.DefaultProductID,
			RevisionID: models.DefaultRevisionID,
			DMC:        models.DefaultDMC,
			MotherDMC:  models.DefaultMotherDMC,
			PanelIndex: 1,
			Tests: []models.Test{{
				Name:    "pins",
				Type:    models.TestTypePin,
				Outcome: models.OutcomeIndeterminate,
				Limits:  models.NoLimits(),
			}},
		},
	}
	it.run(forest, modTime)
	return it.board, it.diags
}

// interpreter carries the state of one load. The power-supply counter is
// scoped here so concurrent loads never interfere.
type interpreter struct {
	board     *models.BoardLog
	diags     []*models.ParseError
	psCounter int
	intern    *StringIntern
}

func (it *interpreter) run(forest []*Node, modTime time.Time) {
	batchNode := it.findBatch(forest)
	btestNode := it.findBTest(forest, batchNode)

	testNodes := forest
	if btestNode != nil {
		testNodes = btestNode.Children
		it.surfaceHeaderErrors(forest, batchNode, btestNode)
	}
	for _, n := range testNodes {
		it.reduceTest(n)
	}

	// Report text is board-wide: every free-text line anywhere in the
	// forest, in file order.
	var lines []string
	Walk(forest, func(n *Node) {
		if r, ok := n.Record.(*ReportRecord); ok {
			lines = append(lines, r.Text)
		}
	})
	it.board.Report = strings.Join(lines, "\n")

	if it.board.TimeStart.IsZero() && !modTime.IsZero() {
		it.board.TimeStart = models.TimestampFromTime(modTime)
	}
	if it.board.TimeEnd.IsZero() {
		it.board.TimeEnd = it.board.TimeStart
	}

	it.board.StatusText = models.StatusText(it.board.Status)
	it.board.Passed = it.board.Status == 0
}

// findBatch reads product identity from the batch header, expected to be the
// last top-level node. A missing header is a warning, not a failure.
func (it *interpreter) findBatch(forest []*Node) *Node {
	if len(forest) == 0 {
		it.warn(0, "", "no batch header record found")
		return nil
	}
	last := forest[len(forest)-1]
	b, ok := last.Record.(*BatchRecord)
	if !ok {
		it.warn(last.Record.Line(), last.Record.Raw(), "no batch header record found")
		return nil
	}
	it.board.ProductID = b.ProductID
	if b.RevisionID != "" {
		it.board.RevisionID = b.RevisionID
	}
	return last
}

// findBTest reads board identity, status and timing from the board-test
// header: the batch header's last branch, or the last top-level node when
// there is no batch header.
func (it *interpreter) findBTest(forest []*Node, batchNode *Node) *Node {
	var candidate *Node
	if batchNode != nil {
		if len(batchNode.Children) > 0 {
			candidate = batchNode.Children[len(batchNode.Children)-1]
		}
	} else if len(forest) > 0 {
		candidate = forest[len(forest)-1]
	}
	if candidate == nil {
		it.warn(0, "", "no board-test header record found")
		return nil
	}
	bt, ok := candidate.Record.(*BTestRecord)
	if !ok {
		it.warn(candidate.Record.Line(), candidate.Record.Raw(), "no board-test header record found")
		return nil
	}

	it.board.DMC = bt.BoardID
	if bt.PanelID != nil {
		it.board.MotherDMC = *bt.PanelID
	} else {
		it.board.MotherDMC = it.board.DMC
	}
	it.board.Status = bt.Status
	it.board.TimeStart = bt.TimeStart
	it.board.TimeEnd = bt.TimeEnd
	it.board.PanelIndex = int(bt.BoardNumber)
	return candidate
}

// surfaceHeaderErrors reports error branches parked next to the headers,
// above the board-test branch that reduceTest walks.
func (it *interpreter) surfaceHeaderErrors(forest []*Node, batchNode, btestNode *Node) {
	tops := forest
	if batchNode != nil {
		tops = batchNode.Children
	}
	for _, n := range tops {
		if n == btestNode {
			continue
		}
		if e, ok := n.Record.(*ErrorRecord); ok {
			it.errorf(e, "%s", e.Reason)
		}
	}
	if batchNode == nil {
		return
	}
	for _, n := range forest {
		if n == batchNode {
			continue
		}
		if e, ok := n.Record.(*ErrorRecord); ok {
			it.errorf(e, "%s", e.Reason)
		}
	}
}

func (it *interpreter) reduceTest(n *Node) {
	switch r := n.Record.(type) {
	case *AnalogRecord:
		if r.Designator == nil || stripIndex(*r.Designator) == "" {
			it.errorf(n.Record, "analog test outside of a block needs a designator")
			return
		}
		it.appendAnalog(n, r, stripIndex(*r.Designator))
	case *BlockRecord:
		it.reduceBlock(n)
	case *DigitalRecord:
		it.reduceProbeDetail(n)
		it.appendSimple(n.Record, stripIndex(r.Designator), models.TestTypeDigital, r.Status)
	case *BoundaryRecord:
		it.reduceBoundaryDetail(n)
		it.appendSimple(n.Record, stripIndex(r.Designator), models.TestTypeBoundary, r.Status)
	case *TJetRecord:
		it.reduceProbeDetail(n)
		it.appendSimple(n.Record, stripIndex(r.Designator), models.TestTypeTestjet, r.Status)
	case *ShortsRecord:
		it.reduceShorts(n, r)
	case *PinsRecord:
		it.reducePins(n, r)
	case *UserDefinedRecord:
		it.reduceUserDefined(r)
	case *ReportRecord:
		// collected board-wide
	case *AlarmRecord, *AlarmIDRecord, *ArrayRecord:
		// accepted structurally, interpretation deferred
	case *ErrorRecord:
		it.errorf(n.Record, "%s", r.Reason)
	default:
		it.errorf(n.Record, "unexpected %s record at test level", n.Record.Kind())
	}
}

// reduceBlock folds a component block: analog members get the block name as
// a prefix, probe members keep their own names, and repeated digital or
// boundary members share one result slot where only a failure may overwrite.
func (it *interpreter) reduceBlock(n *Node) {
	blk := n.Record.(*BlockRecord)
	blockName := stripIndex(blk.Designator)
	digitalSlot := -1
	boundarySlot := -1

	for _, child := range n.Children {
		switch r := child.Record.(type) {
		case *AnalogRecord:
			name := blockName
			if r.Designator != nil {
				name = blockName + "%" + *r.Designator
			}
			it.appendAnalog(child, r, name)
		case *DigitalRecord:
			it.reduceProbeDetail(child)
			digitalSlot = it.mergeSlot(child.Record, digitalSlot, stripIndex(r.Designator), models.TestTypeDigital, r.Status)
		case *BoundaryRecord:
			it.reduceBoundaryDetail(child)
			boundarySlot = it.mergeSlot(child.Record, boundarySlot, stripIndex(r.Designator), models.TestTypeBoundary, r.Status)
		case *TJetRecord:
			it.reduceProbeDetail(child)
			it.appendSimple(child.Record, blockName+"%"+stripIndex(r.Designator), models.TestTypeTestjet, r.Status)
		case *ReportRecord:
			// collected board-wide
		case *UserDefinedRecord:
			it.errorf(child.Record, "user defined directive inside a block is not supported")
		case *ErrorRecord:
			it.errorf(child.Record, "%s", r.Reason)
		default:
			it.errorf(child.Record, "unexpected %s record inside a block", child.Record.Kind())
		}
	}
}

// appendAnalog turns one analog record into a Test. Limit data, when
// present, is always the first branch; anything else there is a parse error,
// not a missing limit.
func (it *interpreter) appendAnalog(n *Node, r *AnalogRecord, name string) {
	limits := models.NoLimits()
	rest := n.Children
	if len(rest) > 0 {
		switch lim := rest[0].Record.(type) {
		case *Lim2Record:
			limits = models.TwoPointLimits(lim.High, lim.Low)
		case *Lim3Record:
			limits = models.ThreePointLimits(lim.Nominal, lim.High, lim.Low)
		default:
			it.errorf(rest[0].Record, "analog test limit parsing error")
		}
		rest = rest[1:]
	}
	for _, sub := range rest {
		switch c := sub.Record.(type) {
		case *ReportRecord:
			// collected board-wide
		case *ErrorRecord:
			it.errorf(sub.Record, "%s", c.Reason)
		default:
			it.errorf(sub.Record, "unexpected %s record under an analog test", sub.Record.Kind())
		}
	}

	if name == "" {
		it.errorf(n.Record, "analog test name is empty after index stripping")
		return
	}
	// Test names repeat on every board of a panel; intern them
	it.board.Tests = append(it.board.Tests, models.Test{
		Name:    it.intern.Intern(name),
		Type:    r.Subtype,
		Outcome: models.OutcomeFromStatus(r.Status),
		Value:   r.Value,
		Limits:  limits,
	})
}

// appendSimple appends a value-less test whose measured value is its own
// status code.
func (it *interpreter) appendSimple(rec Record, name string, ttype models.TestType, status int32) {
	if name == "" {
		it.errorf(rec, "%s test name is empty after index stripping", ttype)
		return
	}
	it.board.Tests = append(it.board.Tests, models.Test{
		Name:    it.intern.Intern(name),
		Type:    ttype,
		Outcome: models.OutcomeFromStatus(status),
		Value:   float64(status),
		Limits:  models.NoLimits(),
	})
}

// mergeSlot implements the shared-slot rule for digital and boundary members
// of a block: the first occurrence creates the Test, a later occurrence with
// a non-zero status overwrites its result, and a later passing occurrence is
// ignored.
func (it *interpreter) mergeSlot(rec Record, slot int, name string, ttype models.TestType, status int32) int {
	if slot >= 0 {
		if status != 0 {
			it.board.Tests[slot].Outcome = models.OutcomeFromStatus(status)
			it.board.Tests[slot].Value = float64(status)
		}
		return slot
	}
	if name == "" {
		it.errorf(rec, "%s test name is empty after index stripping", ttype)
		return slot
	}
	slot = len(it.board.Tests)
	it.appendSimple(rec, name, ttype, status)
	return slot
}

// reduceProbeDetail walks the sub-records of a digital or testjet test:
// digital-pin lines feed the board-wide failed-node list.
func (it *interpreter) reduceProbeDetail(n *Node) {
	for _, sub := range n.Children {
		switch r := sub.Record.(type) {
		case *DPinRecord:
			for _, p := range r.Pins {
				it.board.FailedNodes = append(it.board.FailedNodes, p.Name)
			}
		case *ReportRecord:
			// collected board-wide
		case *ErrorRecord:
			it.errorf(sub.Record, "%s", r.Reason)
		default:
			it.errorf(sub.Record, "unexpected %s record under a probe test", sub.Record.Kind())
		}
	}
}

// reduceBoundaryDetail walks the sub-records of a boundary-scan test. The
// open/short detail lines are deferred: accepted, never surfaced.
func (it *interpreter) reduceBoundaryDetail(n *Node) {
	for _, sub := range n.Children {
		switch r := sub.Record.(type) {
		case *BSOpenRecord, *BSShortRecord:
			// accepted structurally, interpretation deferred
		case *ReportRecord:
			// collected board-wide
		case *ErrorRecord:
			it.errorf(sub.Record, "%s", r.Reason)
		default:
			it.errorf(sub.Record, "unexpected %s record under a boundary test", sub.Record.Kind())
		}
	}
}

// reduceShorts folds the continuity test. The equipment sometimes reports a
// passing primary status on a failing run, so any positive count field
// forces a failure before classification.
func (it *interpreter) reduceShorts(n *Node, r *ShortsRecord) {
	status := r.Status
	if r.ShortsCount > 0 || r.OpensCount > 0 || r.PhantomsCount > 0 {
		status = 1
	}

	for _, sub := range n.Children {
		switch c := sub.Record.(type) {
		case *ReportRecord:
			// collected board-wide
		case *ShortsSourceRecord:
			it.board.FailedNodes = append(it.board.FailedNodes, c.Node)
			for _, dest := range sub.Children {
				switch d := dest.Record.(type) {
				case *ShortsDestRecord:
					for _, nv := range d.Nodes {
						it.board.FailedNodes = append(it.board.FailedNodes, nv.Node)
					}
				case *ReportRecord:
					// collected board-wide
				case *ErrorRecord:
					it.errorf(dest.Record, "%s", d.Reason)
				default:
					it.errorf(dest.Record, "unexpected %s record under a shorts source", dest.Record.Kind())
				}
			}
		case *ShortsOpenRecord:
			it.board.FailedNodes = append(it.board.FailedNodes, c.Source, c.Dest)
			for _, sub2 := range sub.Children {
				switch d := sub2.Record.(type) {
				case *ReportRecord:
					// collected board-wide
				case *ErrorRecord:
					it.errorf(sub2.Record, "%s", d.Reason)
				default:
					it.errorf(sub2.Record, "unexpected %s record under a shorts open", sub2.Record.Kind())
				}
			}
		case *ErrorRecord:
			it.errorf(sub.Record, "%s", c.Reason)
		default:
			it.errorf(sub.Record, "unexpected %s record under a shorts test", sub.Record.Kind())
		}
	}

	it.board.Tests = append(it.board.Tests, models.Test{
		Name:    "shorts",
		Type:    models.TestTypeShorts,
		Outcome: models.OutcomeFromStatus(status),
		Value:   float64(status),
		Limits:  models.NoLimits(),
	})
}

// reducePins patches the pre-seeded pin-group test in place and feeds the
// board-wide failed-pin list.
func (it *interpreter) reducePins(n *Node, r *PinsRecord) {
	for _, sub := range n.Children {
		switch c := sub.Record.(type) {
		case *PinRecord:
			it.board.FailedPins = append(it.board.FailedPins, c.Pins...)
		case *ReportRecord:
			// collected board-wide
		case *ErrorRecord:
			it.errorf(sub.Record, "%s", c.Reason)
		default:
			it.errorf(sub.Record, "unexpected %s record under a pin test", sub.Record.Kind())
		}
	}
	it.board.Tests[0].Outcome = models.OutcomeFromStatus(r.Status)
	it.board.Tests[0].Value = float64(r.Status)
}

// reduceUserDefined handles vendor directives matched by their first token.
// Unknown directives and malformed fields are diagnostics, never tests.
func (it *interpreter) reduceUserDefined(r *UserDefinedRecord) {
	switch r.Fields[0] {
	case "@Programming_time":
		if len(r.Fields) < 2 {
			it.errorf(r, "malformed @Programming_time directive")
			return
		}
		raw, ok := strings.CutSuffix(r.Fields[1], "msec")
		if !ok {
			it.errorf(r, "malformed @Programming_time directive")
			return
		}
		ms, err := strconv.Atoi(raw)
		if err != nil {
			it.errorf(r, "malformed @Programming_time directive")
			return
		}
		it.board.Tests = append(it.board.Tests, models.Test{
			Name:    "Programming_time",
			Type:    models.TestTypeUnknown,
			Outcome: models.OutcomePass,
			Value:   float64(ms) / 1000.0,
			Limits:  models.NoLimits(),
		})
	case "@PS_info":
		if len(r.Fields) < 3 {
			it.errorf(r, "malformed @PS_info directive")
			return
		}
		rawV, okV := strings.CutSuffix(r.Fields[1], "V")
		rawA, okA := strings.CutSuffix(r.Fields[2], "A")
		if !okV || !okA {
			it.errorf(r, "malformed @PS_info directive")
			return
		}
		voltage, errV := strconv.ParseFloat(rawV, 64)
		current, errA := strconv.ParseFloat(rawA, 64)
		if errV != nil || errA != nil {
			it.errorf(r, "malformed @PS_info directive")
			return
		}
		it.psCounter++
		it.board.Tests = append(it.board.Tests,
			models.Test{
				Name:    fmt.Sprintf("PS_Info_%d%%Voltage", it.psCounter),
				Type:    models.TestTypeMeasurement,
				Outcome: models.OutcomePass,
				Value:   voltage,
				Limits:  models.NoLimits(),
			},
			models.Test{
				Name:    fmt.Sprintf("PS_Info_%d%%Current", it.psCounter),
				Type:    models.TestTypeCurrent,
				Outcome: models.OutcomePass,
				Value:   current,
				Limits:  models.NoLimits(),
			},
		)
	default:
		it.errorf(r, "unhandled %s directive", r.Fields[0])
	}
}

// stripIndex removes the equipment's sequence marker from a test name:
// "17%c617" becomes "c617". A name without the separator is kept unchanged.
func stripIndex(s string) string {
	if i := strings.IndexByte(s, '%'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (it *interpreter) warn(line int, content, reason string) {
	logger.Warnf("interpret: %s", reason)
	it.diags = append(it.diags, &models.ParseError{Line: line, Content: content, Reason: reason})
}

func (it *interpreter) errorf(rec Record, format string, args ...interface{}) {
	reason := fmt.Sprintf(format, args...)
	logger.Errorf("interpret: line %d: %s", rec.Line(), reason)
	it.diags = append(it.diags, &models.ParseError{Line: rec.Line(), Content: rec.Raw(), Reason: reason})
}
