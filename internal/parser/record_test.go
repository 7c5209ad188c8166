package parser

import (
	"testing"

	"github.com/ict-visualizer/backend/internal/models"
)

func TestSplitRecords(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "single wrapped record",
			line: "{@BTEST|V123|0|240115143000|65|0|2|2|0|0|240115143105|00|3}",
			want: []string{"@BTEST|V123|0|240115143000|65|0|2|2|0|0|240115143105|00|3"},
		},
		{
			name: "joined records with trailing brace run",
			line: "{@BLOCK|17%c617|0}{@A-CAP|0|3.29e-10|c617}{@LIM2|4.18e-10|2.47e-10}}",
			want: []string{"@BLOCK|17%c617|0", "@A-CAP|0|3.29e-10|c617", "@LIM2|4.18e-10|2.47e-10"},
		},
		{
			name: "closing braces only",
			line: "}}",
			want: nil,
		},
		{
			name: "blank line",
			line: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitRecords(tt.line)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d records, got %d: %v", len(tt.want), len(got), got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("Expected record %q at %d, got %q", tt.want[i], i, got[i])
				}
			}
		})
	}
}

func TestClassifyBatch(t *testing.T) {
	rec := Classify("@BATCH|588A|B|05|1|Standard|ICT|B01|op7|ct01|tp588|2|panel588|A", 1)

	b, ok := rec.(*BatchRecord)
	if !ok {
		t.Fatalf("Expected BatchRecord, got %T", rec)
	}
	if b.ProductID != "588A" {
		t.Errorf("Expected ProductID 588A, got %s", b.ProductID)
	}
	if b.RevisionID != "B" {
		t.Errorf("Expected RevisionID B, got %s", b.RevisionID)
	}
	if b.ProcessStep != "ICT" {
		t.Errorf("Expected ProcessStep ICT, got %s", b.ProcessStep)
	}
	if b.Line() != 1 {
		t.Errorf("Expected line 1, got %d", b.Line())
	}
}

func TestClassifyBTest(t *testing.T) {
	rec := Classify("@BTEST|V123456789|1|240115143000|65|0|2|2|0|0|240115143105|00|3|P987", 2)

	bt, ok := rec.(*BTestRecord)
	if !ok {
		t.Fatalf("Expected BTestRecord, got %T", rec)
	}
	if bt.BoardID != "V123456789" {
		t.Errorf("Expected BoardID V123456789, got %s", bt.BoardID)
	}
	if bt.Status != 1 {
		t.Errorf("Expected status 1, got %d", bt.Status)
	}
	if bt.TimeStart != models.Timestamp(240115143000) {
		t.Errorf("Expected start 240115143000, got %d", bt.TimeStart)
	}
	if bt.TimeEnd != models.Timestamp(240115143105) {
		t.Errorf("Expected end 240115143105, got %d", bt.TimeEnd)
	}
	if bt.BoardNumber != 3 {
		t.Errorf("Expected board number 3, got %d", bt.BoardNumber)
	}
	if bt.PanelID == nil || *bt.PanelID != "P987" {
		t.Errorf("Expected panel id P987, got %v", bt.PanelID)
	}
}

func TestClassifyBTestWithoutPanelID(t *testing.T) {
	rec := Classify("@BTEST|V123456789|0|240115143000|65|0|2|2|0|0|240115143105|00|1", 1)

	bt, ok := rec.(*BTestRecord)
	if !ok {
		t.Fatalf("Expected BTestRecord, got %T", rec)
	}
	if bt.PanelID != nil {
		t.Errorf("Expected nil panel id, got %q", *bt.PanelID)
	}
}

func TestClassifyAnalog(t *testing.T) {
	rec := Classify("@A-CAP|0|3.29e-10|c617", 4)

	a, ok := rec.(*AnalogRecord)
	if !ok {
		t.Fatalf("Expected AnalogRecord, got %T", rec)
	}
	if a.Subtype != models.TestTypeCapacitor {
		t.Errorf("Expected capacitor subtype, got %s", a.Subtype)
	}
	if a.Status != 0 {
		t.Errorf("Expected status 0, got %d", a.Status)
	}
	if a.Value != 3.29e-10 {
		t.Errorf("Expected value 3.29e-10, got %g", a.Value)
	}
	if a.Designator == nil || *a.Designator != "c617" {
		t.Errorf("Expected designator c617, got %v", a.Designator)
	}
}

func TestClassifyAnalogWithoutDesignator(t *testing.T) {
	rec := Classify("@A-RES|0|99.7", 1)

	a, ok := rec.(*AnalogRecord)
	if !ok {
		t.Fatalf("Expected AnalogRecord, got %T", rec)
	}
	if a.Subtype != models.TestTypeResistor {
		t.Errorf("Expected resistor subtype, got %s", a.Subtype)
	}
	if a.Designator != nil {
		t.Errorf("Expected nil designator, got %q", *a.Designator)
	}
}

func TestClassifyAnalogBadValue(t *testing.T) {
	rec := Classify("@A-CAP|0|not-a-number|c617", 7)

	e, ok := rec.(*ErrorRecord)
	if !ok {
		t.Fatalf("Expected ErrorRecord for a bad value, got %T", rec)
	}
	if e.Line() != 7 {
		t.Errorf("Expected line 7, got %d", e.Line())
	}
}

func TestClassifyLimits(t *testing.T) {
	rec := Classify("@LIM2|5.5|4.5", 1)
	l2, ok := rec.(*Lim2Record)
	if !ok {
		t.Fatalf("Expected Lim2Record, got %T", rec)
	}
	if l2.High != 5.5 || l2.Low != 4.5 {
		t.Errorf("Expected 5.5/4.5, got %g/%g", l2.High, l2.Low)
	}

	rec = Classify("@LIM3|5.0|5.5|4.5", 2)
	l3, ok := rec.(*Lim3Record)
	if !ok {
		t.Fatalf("Expected Lim3Record, got %T", rec)
	}
	if l3.Nominal != 5.0 || l3.High != 5.5 || l3.Low != 4.5 {
		t.Errorf("Expected 5.0/5.5/4.5, got %g/%g/%g", l3.Nominal, l3.High, l3.Low)
	}
}

func TestClassifyShorts(t *testing.T) {
	rec := Classify("@TS|0|2|0|0|shorts", 1)

	s, ok := rec.(*ShortsRecord)
	if !ok {
		t.Fatalf("Expected ShortsRecord, got %T", rec)
	}
	if s.Status != 0 {
		t.Errorf("Expected status 0, got %d", s.Status)
	}
	if s.ShortsCount != 2 {
		t.Errorf("Expected shorts count 2, got %d", s.ShortsCount)
	}
	if s.Designator != "shorts" {
		t.Errorf("Expected designator shorts, got %s", s.Designator)
	}
}

func TestClassifyDigital(t *testing.T) {
	rec := Classify("@D-T|3|0|12|32|u301", 1)

	d, ok := rec.(*DigitalRecord)
	if !ok {
		t.Fatalf("Expected DigitalRecord, got %T", rec)
	}
	if d.Status != 3 {
		t.Errorf("Expected status 3, got %d", d.Status)
	}
	if d.FailingVector != 12 {
		t.Errorf("Expected failing vector 12, got %d", d.FailingVector)
	}
	if d.Designator != "u301" {
		t.Errorf("Expected designator u301, got %s", d.Designator)
	}
}

func TestClassifyDPin(t *testing.T) {
	rec := Classify("@DPIN|2|u301-4|1|u301-7|1", 1)

	d, ok := rec.(*DPinRecord)
	if !ok {
		t.Fatalf("Expected DPinRecord, got %T", rec)
	}
	if d.Count != 2 {
		t.Errorf("Expected count 2, got %d", d.Count)
	}
	if len(d.Pins) != 2 {
		t.Fatalf("Expected 2 pins, got %d", len(d.Pins))
	}
	if d.Pins[0].Name != "u301-4" || d.Pins[1].Name != "u301-7" {
		t.Errorf("Expected pins u301-4/u301-7, got %s/%s", d.Pins[0].Name, d.Pins[1].Name)
	}
}

func TestClassifyPin(t *testing.T) {
	rec := Classify("@PIN|23|47|112", 1)

	p, ok := rec.(*PinRecord)
	if !ok {
		t.Fatalf("Expected PinRecord, got %T", rec)
	}
	if len(p.Pins) != 3 {
		t.Fatalf("Expected 3 pins, got %d", len(p.Pins))
	}
	if p.Pins[0] != "23" {
		t.Errorf("Expected pin 23, got %s", p.Pins[0])
	}
}

func TestClassifyReport(t *testing.T) {
	rec := Classify("@RPT|R617 measured 3.1e-10, expected 4.2e-10", 1)

	r, ok := rec.(*ReportRecord)
	if !ok {
		t.Fatalf("Expected ReportRecord, got %T", rec)
	}
	if r.Text != "R617 measured 3.1e-10, expected 4.2e-10" {
		t.Errorf("Unexpected report text: %s", r.Text)
	}
}

func TestClassifyUserDefined(t *testing.T) {
	rec := Classify("@Programming_time|1500msec", 1)

	u, ok := rec.(*UserDefinedRecord)
	if !ok {
		t.Fatalf("Expected UserDefinedRecord, got %T", rec)
	}
	if len(u.Fields) != 2 || u.Fields[0] != "@Programming_time" {
		t.Errorf("Expected tag kept in fields, got %v", u.Fields)
	}
}

func TestClassifyNonTagLine(t *testing.T) {
	rec := Classify("not a record at all", 9)

	e, ok := rec.(*ErrorRecord)
	if !ok {
		t.Fatalf("Expected ErrorRecord, got %T", rec)
	}
	if e.Raw() != "not a record at all" {
		t.Errorf("Expected raw line preserved, got %s", e.Raw())
	}
}

func TestClassifyShortRecord(t *testing.T) {
	rec := Classify("@BTEST|V123|0", 1)

	if _, ok := rec.(*ErrorRecord); !ok {
		t.Fatalf("Expected ErrorRecord for a truncated header, got %T", rec)
	}
}
