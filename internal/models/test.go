package models

import "fmt"

// TestType classifies a normalized test result.
type TestType string

const (
	TestTypePin         TestType = "pin"
	TestTypeShorts      TestType = "shorts"
	TestTypeJumper      TestType = "jumper"
	TestTypeFuse        TestType = "fuse"
	TestTypeResistor    TestType = "resistor"
	TestTypeCapacitor   TestType = "capacitor"
	TestTypeInductor    TestType = "inductor"
	TestTypeDiode       TestType = "diode"
	TestTypeZener       TestType = "zener"
	TestTypeNFet        TestType = "nfet"
	TestTypePFet        TestType = "pfet"
	TestTypeNPN         TestType = "npn"
	TestTypePNP         TestType = "pnp"
	TestTypePot         TestType = "pot"
	TestTypeSwitch      TestType = "switch"
	TestTypeTestjet     TestType = "testjet"
	TestTypeDigital     TestType = "digital"
	TestTypeMeasurement TestType = "measurement"
	TestTypeCurrent     TestType = "current"
	TestTypeBoundary    TestType = "boundary"
	TestTypeUnknown     TestType = "unknown"
)

// Unit returns the measurement unit for values of this test type.
func (t TestType) Unit() string {
	switch t {
	case TestTypeJumper, TestTypeFuse, TestTypeResistor, TestTypePot, TestTypeSwitch:
		return "Ω"
	case TestTypeCapacitor:
		return "F"
	case TestTypeInductor:
		return "H"
	case TestTypeDiode, TestTypeZener, TestTypeNFet, TestTypePFet,
		TestTypeNPN, TestTypePNP, TestTypeMeasurement:
		return "V"
	case TestTypeCurrent:
		return "A"
	default:
		return "Result"
	}
}

// Outcome is the result tag of a single test.
type Outcome string

const (
	OutcomePass          Outcome = "pass"
	OutcomeFail          Outcome = "fail"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// OutcomeFromStatus maps an equipment status code to an outcome (0 = pass).
func OutcomeFromStatus(status int32) Outcome {
	if status == 0 {
		return OutcomePass
	}
	return OutcomeFail
}

// String renders the outcome the way the report viewer displays it.
func (o Outcome) String() string {
	switch o {
	case OutcomePass:
		return "Pass"
	case OutcomeFail:
		return "Fail"
	default:
		return "NA"
	}
}

// LimitKind discriminates the limit variants a test may carry.
type LimitKind string

const (
	LimitNone  LimitKind = "none"
	LimitTwo   LimitKind = "lim2"
	LimitThree LimitKind = "lim3"
)

// Limits holds the measurement bounds supplied by the log, if any.
// A two-point limit uses Upper/Lower only; a three-point limit adds Nominal.
type Limits struct {
	Kind    LimitKind `json:"kind"`
	Nominal float64   `json:"nominal,omitempty"`
	Upper   float64   `json:"upper,omitempty"`
	Lower   float64   `json:"lower,omitempty"`
}

// NoLimits is the absent-limits value.
func NoLimits() Limits {
	return Limits{Kind: LimitNone}
}

// TwoPointLimits builds a two-point {upper, lower} limit.
func TwoPointLimits(upper, lower float64) Limits {
	return Limits{Kind: LimitTwo, Upper: upper, Lower: lower}
}

// ThreePointLimits builds a three-point {nominal, upper, lower} limit.
func ThreePointLimits(nominal, upper, lower float64) Limits {
	return Limits{Kind: LimitThree, Nominal: nominal, Upper: upper, Lower: lower}
}

// String renders the limit variant without coercion between forms.
func (l Limits) String() string {
	switch l.Kind {
	case LimitTwo:
		return fmt.Sprintf("Lim2(%g, %g)", l.Upper, l.Lower)
	case LimitThree:
		return fmt.Sprintf("Lim3(%g, %g, %g)", l.Nominal, l.Upper, l.Lower)
	default:
		return "None"
	}
}

// Test is one normalized test result.
// Composite names for sub-tests of a group are "<group>%<subname>".
type Test struct {
	Name    string   `json:"name"`
	Type    TestType `json:"type"`
	Outcome Outcome  `json:"outcome"`
	Value   float64  `json:"value"`
	Limits  Limits   `json:"limits"`
}

// Failed reports whether the test outcome is a failure.
func (t *Test) Failed() bool {
	return t.Outcome == OutcomeFail
}
