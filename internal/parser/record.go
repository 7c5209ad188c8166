package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ict-visualizer/backend/internal/models"
)

// RecordKind identifies the shape of one classified log record.
type RecordKind string

const (
	KindBatch        RecordKind = "batch"
	KindBTest        RecordKind = "board-test"
	KindAnalog       RecordKind = "analog"
	KindBlock        RecordKind = "block"
	KindDigital      RecordKind = "digital"
	KindBoundary     RecordKind = "boundary"
	KindTJet         RecordKind = "testjet"
	KindShorts       RecordKind = "shorts"
	KindShortsSource RecordKind = "shorts-source"
	KindShortsDest   RecordKind = "shorts-dest"
	KindShortsOpen   RecordKind = "shorts-open"
	KindPins         RecordKind = "pin-group"
	KindPin          RecordKind = "pin"
	KindDPin         RecordKind = "digital-pin"
	KindLim2         RecordKind = "lim2"
	KindLim3         RecordKind = "lim3"
	KindReport       RecordKind = "report"
	KindBSOpen       RecordKind = "bs-open"
	KindBSShort      RecordKind = "bs-short"
	KindAlarm        RecordKind = "alarm"
	KindAlarmID      RecordKind = "alarm-id"
	KindArray        RecordKind = "array"
	KindUserDefined  RecordKind = "user-defined"
	KindError        RecordKind = "error"
)

// Record is one classified log record. The set of implementations is closed:
// consumers type-switch on the concrete variant and treat an unknown case as
// a programming error.
type Record interface {
	Kind() RecordKind
	// Line is the 1-based line number the record came from.
	Line() int
	// Raw is the record text as it appeared in the file, braces stripped.
	Raw() string

	sealedRecord()
}

type recordBase struct {
	line int
	raw  string
}

func (b recordBase) Line() int   { return b.line }
func (b recordBase) Raw() string { return b.raw }
func (recordBase) sealedRecord() {}

// BatchRecord is the batch header carrying product and testplan identity.
type BatchRecord struct {
	recordBase
	ProductID      string
	RevisionID     string
	FixtureID      string
	TestheadNumber string
	TestheadType   string
	ProcessStep    string
	BatchID        string
	OperatorID     string
	Controller     string
	TestplanID     string
	TestplanRev    string
	PanelType      string
	PanelRev       string
	VersionLabel   string
}

func (BatchRecord) Kind() RecordKind { return KindBatch }

// BTestRecord is the board-test header for one run of one physical board.
type BTestRecord struct {
	recordBase
	BoardID         string
	Status          int32
	TimeStart       models.Timestamp
	Duration        string
	MultipleTest    string
	LogLevel        string
	LogSet          string
	Learning        string
	KnownGood       string
	TimeEnd         models.Timestamp
	StatusQualifier string
	BoardNumber     int32
	// PanelID is the parent panel identifier, nil when the field is absent.
	PanelID *string
}

func (BTestRecord) Kind() RecordKind { return KindBTest }

// AnalogRecord is one analog component measurement. Subtype carries the
// component class taken from the tag itself.
type AnalogRecord struct {
	recordBase
	Subtype models.TestType
	Status  int32
	Value   float64
	// Designator is nil for unnamed measurements inside a block.
	Designator *string
}

func (AnalogRecord) Kind() RecordKind { return KindAnalog }

// BlockRecord groups the measurements of one component.
type BlockRecord struct {
	recordBase
	Designator string
	Status     int32
}

func (BlockRecord) Kind() RecordKind { return KindBlock }

// DigitalRecord is one digital (vector) test.
type DigitalRecord struct {
	recordBase
	Status        int32
	SubStatus     int32
	FailingVector int32
	PinCount      int32
	Designator    string
}

func (DigitalRecord) Kind() RecordKind { return KindDigital }

// BoundaryRecord is one boundary-scan connect test.
type BoundaryRecord struct {
	recordBase
	Designator  string
	Status      int32
	ShortsCount int32
	OpensCount  int32
}

func (BoundaryRecord) Kind() RecordKind { return KindBoundary }

// TJetRecord is one contactless probe (testjet) measurement.
type TJetRecord struct {
	recordBase
	Status     int32
	Head       int32
	Designator string
}

func (TJetRecord) Kind() RecordKind { return KindTJet }

// ShortsRecord is the continuity test summary. The three count fields are
// checked independently of Status because the equipment is known to report
// a passing primary status on failing runs.
type ShortsRecord struct {
	recordBase
	Status        int32
	ShortsCount   int32
	OpensCount    int32
	PhantomsCount int32
	Designator    string
}

func (ShortsRecord) Kind() RecordKind { return KindShorts }

// ShortsSourceRecord names the source node of one detected short. The first
// two positional fields are carried uninterpreted.
type ShortsSourceRecord struct {
	recordBase
	Aux1 string
	Aux2 string
	Node string
}

func (ShortsSourceRecord) Kind() RecordKind { return KindShortsSource }

// NodeValue is one (node, measured value) pair of a shorts-destination record.
type NodeValue struct {
	Node  string
	Value float64
}

// ShortsDestRecord lists the destination nodes of one detected short.
type ShortsDestRecord struct {
	recordBase
	Nodes []NodeValue
}

func (ShortsDestRecord) Kind() RecordKind { return KindShortsDest }

// ShortsOpenRecord names the two endpoints of one detected open.
type ShortsOpenRecord struct {
	recordBase
	Source string
	Dest   string
	Aux    string
}

func (ShortsOpenRecord) Kind() RecordKind { return KindShortsOpen }

// PinsRecord is the pin-group (fixture contact) test header.
type PinsRecord struct {
	recordBase
	Designator string
	Status     int32
	PinCount   int32
}

func (PinsRecord) Kind() RecordKind { return KindPins }

// PinRecord lists failing fixture pins.
type PinRecord struct {
	recordBase
	Pins []string
}

func (PinRecord) Kind() RecordKind { return KindPin }

// PinState is one (pin name, pin state) pair of a digital-pin record.
type PinState struct {
	Name  string
	State int32
}

// DPinRecord lists failing pins of a digital or testjet test.
type DPinRecord struct {
	recordBase
	Count int32
	Pins  []PinState
}

func (DPinRecord) Kind() RecordKind { return KindDPin }

// Lim2Record is a two-point limit: upper and lower bound.
type Lim2Record struct {
	recordBase
	High float64
	Low  float64
}

func (Lim2Record) Kind() RecordKind { return KindLim2 }

// Lim3Record is a three-point limit: nominal plus upper and lower bound.
type Lim3Record struct {
	recordBase
	Nominal float64
	High    float64
	Low     float64
}

func (Lim3Record) Kind() RecordKind { return KindLim3 }

// ReportRecord is one free-text diagnostic line.
type ReportRecord struct {
	recordBase
	Text string
}

func (ReportRecord) Kind() RecordKind { return KindReport }

// BSOpenRecord is a boundary-scan open detail line, accepted structurally
// but not interpreted.
type BSOpenRecord struct {
	recordBase
	Fields []string
}

func (BSOpenRecord) Kind() RecordKind { return KindBSOpen }

// BSShortRecord is a boundary-scan short detail line, accepted structurally
// but not interpreted.
type BSShortRecord struct {
	recordBase
	Fields []string
}

func (BSShortRecord) Kind() RecordKind { return KindBSShort }

// AlarmRecord is an equipment alarm line, accepted structurally but not
// interpreted.
type AlarmRecord struct {
	recordBase
	Fields []string
}

func (AlarmRecord) Kind() RecordKind { return KindAlarm }

// AlarmIDRecord is an alarm identity line, accepted structurally but not
// interpreted.
type AlarmIDRecord struct {
	recordBase
	Fields []string
}

func (AlarmIDRecord) Kind() RecordKind { return KindAlarmID }

// ArrayRecord is a panel array line, accepted structurally but not
// interpreted.
type ArrayRecord struct {
	recordBase
	Fields []string
}

func (ArrayRecord) Kind() RecordKind { return KindArray }

// UserDefinedRecord is a vendor directive with an unrecognized tag. Fields
// keeps every field including the tag itself at position 0.
type UserDefinedRecord struct {
	recordBase
	Fields []string
}

func (UserDefinedRecord) Kind() RecordKind { return KindUserDefined }

// ErrorRecord marks a line that could not be classified: an unknown shape,
// a malformed numeric field, or an illegally nested record.
type ErrorRecord struct {
	recordBase
	Fields []string
	Reason string
}

func (ErrorRecord) Kind() RecordKind { return KindError }

// analogSubtypes maps the analog record tags to the component class they
// measure.
var analogSubtypes = map[string]models.TestType{
	"@A-CAP": models.TestTypeCapacitor,
	"@A-DIO": models.TestTypeDiode,
	"@A-FUS": models.TestTypeFuse,
	"@A-IND": models.TestTypeInductor,
	"@A-JUM": models.TestTypeJumper,
	"@A-MEA": models.TestTypeMeasurement,
	"@A-NFE": models.TestTypeNFet,
	"@A-NPN": models.TestTypeNPN,
	"@A-PFE": models.TestTypePFet,
	"@A-PNP": models.TestTypePNP,
	"@A-POT": models.TestTypePot,
	"@A-RES": models.TestTypeResistor,
	"@A-SWI": models.TestTypeSwitch,
	"@A-ZEN": models.TestTypeZener,
}

// SplitRecords breaks one physical line into its raw records. The equipment
// wraps records in braces and may join several on one line; braces carry no
// structural meaning here (nesting is by record kind), so they are stripped.
func SplitRecords(line string) []string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "{")
	if s == "" {
		return nil
	}

	var parts []string
	start := 0
	for i := 0; i+2 < len(s); i++ {
		if s[i] == '}' && s[i+1] == '{' && s[i+2] == '@' {
			parts = append(parts, s[start:i])
			i++
			start = i + 1
		}
	}
	parts = append(parts, s[start:])

	records := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimRight(strings.TrimSpace(p), "}")
		if p != "" {
			records = append(records, p)
		}
	}
	return records
}

// Classify maps one raw record to its typed Record. It never fails: lines
// that cannot be classified come back as an ErrorRecord, and diagnostics are
// left entirely to the caller.
func Classify(raw string, line int) Record {
	base := recordBase{line: line, raw: raw}
	fields := strings.Split(raw, "|")
	tag := fields[0]
	args := fields[1:]

	if !strings.HasPrefix(tag, "@") {
		return &ErrorRecord{recordBase: base, Fields: fields, Reason: "record does not start with a tag"}
	}

	if subtype, ok := analogSubtypes[tag]; ok {
		return classifyAnalog(base, subtype, args)
	}

	switch tag {
	case "@BATCH":
		return classifyBatch(base, args)
	case "@BTEST":
		return classifyBTest(base, args)
	case "@BLOCK":
		return classifyBlock(base, args)
	case "@D-T":
		return classifyDigital(base, args)
	case "@BS-CON":
		return classifyBoundary(base, args)
	case "@TJET":
		return classifyTJet(base, args)
	case "@TS":
		return classifyShorts(base, args)
	case "@S-S":
		return classifyShortsSource(base, args)
	case "@S-D":
		return classifyShortsDest(base, args)
	case "@S-O":
		return classifyShortsOpen(base, args)
	case "@PF":
		return classifyPins(base, args)
	case "@PIN":
		return classifyPin(base, args)
	case "@DPIN":
		return classifyDPin(base, args)
	case "@LIM2":
		return classifyLim2(base, args)
	case "@LIM3":
		return classifyLim3(base, args)
	case "@RPT":
		return &ReportRecord{recordBase: base, Text: strings.Join(args, "|")}
	case "@BS-O":
		return &BSOpenRecord{recordBase: base, Fields: args}
	case "@BS-S":
		return &BSShortRecord{recordBase: base, Fields: args}
	case "@ALM":
		return &AlarmRecord{recordBase: base, Fields: args}
	case "@AID":
		return &AlarmIDRecord{recordBase: base, Fields: args}
	case "@ARRAY":
		return &ArrayRecord{recordBase: base, Fields: args}
	default:
		return &UserDefinedRecord{recordBase: base, Fields: fields}
	}
}

func classifyBatch(base recordBase, args []string) Record {
	if len(args) < 13 {
		return shortRecord(base, args, "@BATCH", 13)
	}
	r := &BatchRecord{
		recordBase:     base,
		ProductID:      args[0],
		RevisionID:     args[1],
		FixtureID:      args[2],
		TestheadNumber: args[3],
		TestheadType:   args[4],
		ProcessStep:    args[5],
		BatchID:        args[6],
		OperatorID:     args[7],
		Controller:     args[8],
		TestplanID:     args[9],
		TestplanRev:    args[10],
		PanelType:      args[11],
		PanelRev:       args[12],
	}
	if len(args) > 13 {
		r.VersionLabel = args[13]
	}
	return r
}

func classifyBTest(base recordBase, args []string) Record {
	if len(args) < 12 {
		return shortRecord(base, args, "@BTEST", 12)
	}
	status, err := parseInt32(args[1])
	if err != nil {
		return badField(base, args, "@BTEST", "status", args[1])
	}
	start, err := parseTimestamp(args[2])
	if err != nil {
		return badField(base, args, "@BTEST", "start time", args[2])
	}
	end, err := parseTimestamp(args[9])
	if err != nil {
		return badField(base, args, "@BTEST", "end time", args[9])
	}
	number, err := parseInt32(args[11])
	if err != nil {
		return badField(base, args, "@BTEST", "board number", args[11])
	}
	r := &BTestRecord{
		recordBase:      base,
		BoardID:         args[0],
		Status:          status,
		TimeStart:       start,
		Duration:        args[3],
		MultipleTest:    args[4],
		LogLevel:        args[5],
		LogSet:          args[6],
		Learning:        args[7],
		KnownGood:       args[8],
		TimeEnd:         end,
		StatusQualifier: args[10],
		BoardNumber:     number,
	}
	if len(args) > 12 {
		r.PanelID = &args[12]
	}
	return r
}

func classifyAnalog(base recordBase, subtype models.TestType, args []string) Record {
	if len(args) < 2 {
		return shortRecord(base, args, "analog", 2)
	}
	status, err := parseInt32(args[0])
	if err != nil {
		return badField(base, args, "analog", "status", args[0])
	}
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return badField(base, args, "analog", "value", args[1])
	}
	r := &AnalogRecord{recordBase: base, Subtype: subtype, Status: status, Value: value}
	if len(args) > 2 {
		r.Designator = &args[2]
	}
	return r
}

func classifyBlock(base recordBase, args []string) Record {
	if len(args) < 2 {
		return shortRecord(base, args, "@BLOCK", 2)
	}
	status, err := parseInt32(args[1])
	if err != nil {
		return badField(base, args, "@BLOCK", "status", args[1])
	}
	return &BlockRecord{recordBase: base, Designator: args[0], Status: status}
}

func classifyDigital(base recordBase, args []string) Record {
	if len(args) < 5 {
		return shortRecord(base, args, "@D-T", 5)
	}
	nums := make([]int32, 4)
	names := []string{"status", "sub status", "failing vector", "pin count"}
	for i := range nums {
		n, err := parseInt32(args[i])
		if err != nil {
			return badField(base, args, "@D-T", names[i], args[i])
		}
		nums[i] = n
	}
	return &DigitalRecord{
		recordBase:    base,
		Status:        nums[0],
		SubStatus:     nums[1],
		FailingVector: nums[2],
		PinCount:      nums[3],
		Designator:    args[4],
	}
}

func classifyBoundary(base recordBase, args []string) Record {
	if len(args) < 4 {
		return shortRecord(base, args, "@BS-CON", 4)
	}
	status, err := parseInt32(args[1])
	if err != nil {
		return badField(base, args, "@BS-CON", "status", args[1])
	}
	shorts, err := parseInt32(args[2])
	if err != nil {
		return badField(base, args, "@BS-CON", "shorts count", args[2])
	}
	opens, err := parseInt32(args[3])
	if err != nil {
		return badField(base, args, "@BS-CON", "opens count", args[3])
	}
	return &BoundaryRecord{
		recordBase:  base,
		Designator:  args[0],
		Status:      status,
		ShortsCount: shorts,
		OpensCount:  opens,
	}
}

func classifyTJet(base recordBase, args []string) Record {
	if len(args) < 3 {
		return shortRecord(base, args, "@TJET", 3)
	}
	status, err := parseInt32(args[0])
	if err != nil {
		return badField(base, args, "@TJET", "status", args[0])
	}
	head, err := parseInt32(args[1])
	if err != nil {
		return badField(base, args, "@TJET", "head", args[1])
	}
	return &TJetRecord{recordBase: base, Status: status, Head: head, Designator: args[2]}
}

func classifyShorts(base recordBase, args []string) Record {
	if len(args) < 4 {
		return shortRecord(base, args, "@TS", 4)
	}
	nums := make([]int32, 4)
	names := []string{"status", "shorts count", "opens count", "phantoms count"}
	for i := range nums {
		n, err := parseInt32(args[i])
		if err != nil {
			return badField(base, args, "@TS", names[i], args[i])
		}
		nums[i] = n
	}
	r := &ShortsRecord{
		recordBase:    base,
		Status:        nums[0],
		ShortsCount:   nums[1],
		OpensCount:    nums[2],
		PhantomsCount: nums[3],
	}
	if len(args) > 4 {
		r.Designator = args[4]
	}
	return r
}

func classifyShortsSource(base recordBase, args []string) Record {
	if len(args) < 3 {
		return shortRecord(base, args, "@S-S", 3)
	}
	return &ShortsSourceRecord{recordBase: base, Aux1: args[0], Aux2: args[1], Node: args[2]}
}

func classifyShortsDest(base recordBase, args []string) Record {
	if len(args) < 2 || len(args)%2 != 0 {
		return &ErrorRecord{recordBase: base, Fields: args, Reason: "@S-D record needs node|value pairs"}
	}
	nodes := make([]NodeValue, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		value, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return badField(base, args, "@S-D", "value", args[i+1])
		}
		nodes = append(nodes, NodeValue{Node: args[i], Value: value})
	}
	return &ShortsDestRecord{recordBase: base, Nodes: nodes}
}

func classifyShortsOpen(base recordBase, args []string) Record {
	if len(args) < 3 {
		return shortRecord(base, args, "@S-O", 3)
	}
	return &ShortsOpenRecord{recordBase: base, Source: args[0], Dest: args[1], Aux: args[2]}
}

func classifyPins(base recordBase, args []string) Record {
	if len(args) < 3 {
		return shortRecord(base, args, "@PF", 3)
	}
	status, err := parseInt32(args[1])
	if err != nil {
		return badField(base, args, "@PF", "status", args[1])
	}
	count, err := parseInt32(args[2])
	if err != nil {
		return badField(base, args, "@PF", "pin count", args[2])
	}
	return &PinsRecord{recordBase: base, Designator: args[0], Status: status, PinCount: count}
}

func classifyPin(base recordBase, args []string) Record {
	if len(args) < 1 {
		return shortRecord(base, args, "@PIN", 1)
	}
	pins := make([]string, len(args))
	copy(pins, args)
	return &PinRecord{recordBase: base, Pins: pins}
}

func classifyDPin(base recordBase, args []string) Record {
	if len(args) < 1 || len(args)%2 != 1 {
		return &ErrorRecord{recordBase: base, Fields: args, Reason: "@DPIN record needs a count and name|state pairs"}
	}
	count, err := parseInt32(args[0])
	if err != nil {
		return badField(base, args, "@DPIN", "count", args[0])
	}
	pins := make([]PinState, 0, (len(args)-1)/2)
	for i := 1; i < len(args); i += 2 {
		state, err := parseInt32(args[i+1])
		if err != nil {
			return badField(base, args, "@DPIN", "state", args[i+1])
		}
		pins = append(pins, PinState{Name: args[i], State: state})
	}
	return &DPinRecord{recordBase: base, Count: count, Pins: pins}
}

func classifyLim2(base recordBase, args []string) Record {
	if len(args) < 2 {
		return shortRecord(base, args, "@LIM2", 2)
	}
	high, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return badField(base, args, "@LIM2", "high limit", args[0])
	}
	low, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return badField(base, args, "@LIM2", "low limit", args[1])
	}
	return &Lim2Record{recordBase: base, High: high, Low: low}
}

func classifyLim3(base recordBase, args []string) Record {
	if len(args) < 3 {
		return shortRecord(base, args, "@LIM3", 3)
	}
	nominal, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return badField(base, args, "@LIM3", "nominal", args[0])
	}
	high, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return badField(base, args, "@LIM3", "high limit", args[1])
	}
	low, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return badField(base, args, "@LIM3", "low limit", args[2])
	}
	return &Lim3Record{recordBase: base, Nominal: nominal, High: high, Low: low}
}

func parseInt32(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	return int32(n), err
}

func parseTimestamp(s string) (models.Timestamp, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	return models.Timestamp(n), err
}

func shortRecord(base recordBase, args []string, tag string, want int) *ErrorRecord {
	return &ErrorRecord{
		recordBase: base,
		Fields:     args,
		Reason:     fmt.Sprintf("%s record has %d fields, needs %d", tag, len(args), want),
	}
}

func badField(base recordBase, args []string, tag, field, value string) *ErrorRecord {
	return &ErrorRecord{
		recordBase: base,
		Fields:     args,
		Reason:     fmt.Sprintf("%s record has a malformed %s %q", tag, field, value),
	}
}
