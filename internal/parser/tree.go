package parser

import "fmt"

// Node owns one Record and its children in file order. Nodes never reference
// their parent; the forest is a strict ownership hierarchy.
type Node struct {
	Record   Record
	Children []*Node
}

// childKinds encodes which record kinds may nest under which. Nesting in the
// log format is implied purely by record kind, never by markers in the text.
var childKinds = map[RecordKind]map[RecordKind]bool{
	KindBatch: {
		KindBTest:  true,
		KindReport: true,
	},
	KindBTest: {
		KindAnalog:      true,
		KindBlock:       true,
		KindDigital:     true,
		KindBoundary:    true,
		KindTJet:        true,
		KindShorts:      true,
		KindPins:        true,
		KindReport:      true,
		KindUserDefined: true,
		KindAlarm:       true,
		KindAlarmID:     true,
		KindArray:       true,
	},
	KindBlock: {
		KindAnalog:      true,
		KindDigital:     true,
		KindTJet:        true,
		KindBoundary:    true,
		KindReport:      true,
		KindUserDefined: true,
	},
	KindAnalog: {
		KindLim2:   true,
		KindLim3:   true,
		KindReport: true,
	},
	KindDigital: {
		KindDPin:   true,
		KindReport: true,
	},
	KindTJet: {
		KindDPin:   true,
		KindReport: true,
	},
	KindBoundary: {
		KindBSOpen:  true,
		KindBSShort: true,
		KindReport:  true,
	},
	KindShorts: {
		KindShortsSource: true,
		KindShortsOpen:   true,
		KindReport:       true,
	},
	KindShortsSource: {
		KindShortsDest: true,
		KindReport:     true,
	},
	KindShortsOpen: {
		KindReport: true,
	},
	KindPins: {
		KindPin:    true,
		KindReport: true,
	},
}

// subordinateKinds may never open a new tree: they only exist under a parent.
var subordinateKinds = map[RecordKind]bool{
	KindLim2:         true,
	KindLim3:         true,
	KindPin:          true,
	KindDPin:         true,
	KindShortsSource: true,
	KindShortsDest:   true,
	KindShortsOpen:   true,
	KindBSOpen:       true,
	KindBSShort:      true,
}

func isContainer(k RecordKind) bool {
	_, ok := childKinds[k]
	return ok
}

// BuildForest groups a classified record sequence into a forest reflecting
// the format's nesting rules. Ordering follows file order at every level. A
// record that cannot legally nest anywhere becomes an error branch instead
// of failing the build.
func BuildForest(records []Record) []*Node {
	var roots []*Node
	var open []*Node

	for _, rec := range records {
		node := &Node{Record: rec}
		kind := rec.Kind()

		// Error records annotate the position they occurred at; they never
		// reshape the surrounding structure.
		if kind == KindError {
			attachLoose(&roots, open, node)
			continue
		}

		parent := -1
		for i := len(open) - 1; i >= 0; i-- {
			if childKinds[open[i].Record.Kind()][kind] {
				parent = i
				break
			}
		}

		if parent >= 0 {
			open = open[:parent+1]
			open[parent].Children = append(open[parent].Children, node)
			if isContainer(kind) {
				open = append(open, node)
			}
			continue
		}

		if subordinateKinds[kind] {
			attachLoose(&roots, open, &Node{Record: illegalNesting(rec)})
			continue
		}

		roots = append(roots, node)
		if isContainer(kind) {
			open = open[:0]
			open = append(open, node)
		}
	}

	return roots
}

// attachLoose hangs a node off the deepest open container, or the forest
// root when nothing is open.
func attachLoose(roots *[]*Node, open []*Node, node *Node) {
	if len(open) > 0 {
		top := open[len(open)-1]
		top.Children = append(top.Children, node)
		return
	}
	*roots = append(*roots, node)
}

func illegalNesting(rec Record) *ErrorRecord {
	return &ErrorRecord{
		recordBase: recordBase{line: rec.Line(), raw: rec.Raw()},
		Reason:     fmt.Sprintf("%s record has no legal parent here", rec.Kind()),
	}
}

// Walk visits every node of the forest in file (pre-)order.
func Walk(forest []*Node, visit func(*Node)) {
	for _, n := range forest {
		walkNode(n, visit)
	}
}

func walkNode(n *Node, visit func(*Node)) {
	visit(n)
	for _, c := range n.Children {
		walkNode(c, visit)
	}
}
