package network

import "fmt"

// RuleObject is the subject class of a rule premise.
type RuleObject int

const (
	RuleNode RuleObject = iota
	RuleLink
	RuleSystem
)

// RuleVariable is the quantity a premise tests.
type RuleVariable int

const (
	RuleDemand RuleVariable = iota
	RuleHead
	RuleLevel
	RulePressure
	RuleFillTime
	RuleDrainTime
	RuleFlow
	RuleStatus
	RuleSetting
	RuleTime
	RuleClockTime
)

var ruleVariableNames = [...]string{
	"DEMAND", "HEAD", "LEVEL", "PRESSURE", "FILLTIME", "DRAINTIME",
	"FLOW", "STATUS", "SETTING", "TIME", "CLOCKTIME",
}

func (v RuleVariable) String() string {
	if v >= 0 && int(v) < len(ruleVariableNames) {
		return ruleVariableNames[v]
	}
	return fmt.Sprintf("RuleVariable(%d)", int(v))
}

// IsTime reports whether premise values of v are in seconds.
func (v RuleVariable) IsTime() bool {
	switch v {
	case RuleTime, RuleClockTime, RuleFillTime, RuleDrainTime:
		return true
	}
	return false
}

type RuleOperator int

const (
	OpEqual RuleOperator = iota
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
)

var ruleOperatorNames = [...]string{"=", "<>", "<", "<=", ">", ">="}

func (o RuleOperator) String() string {
	if o >= 0 && int(o) < len(ruleOperatorNames) {
		return ruleOperatorNames[o]
	}
	return fmt.Sprintf("RuleOperator(%d)", int(o))
}

// Compare applies o to x and y, treating values within tol as equal.
func (o RuleOperator) Compare(x, y, tol float64) bool {
	switch o {
	case OpEqual:
		return x >= y-tol && x <= y+tol
	case OpNotEqual:
		return x < y-tol || x > y+tol
	case OpLess:
		return x < y-tol
	case OpLessEqual:
		return x <= y+tol
	case OpGreater:
		return x > y+tol
	case OpGreaterEqual:
		return x >= y-tol
	}
	return false
}

// Premise is one IF/AND/OR clause of a rule.
type Premise struct {
	// Or joins the premise to the ones before it with OR instead of AND.
	Or       bool
	Object   RuleObject
	Index    int // 1-based node or link index, 0 for SYSTEM
	Variable RuleVariable
	Operator RuleOperator
	// Value is in reporting units, or seconds for time variables.
	Value  float64
	Status LinkStatus // STATUS premises only
}

// RuleAction sets a link's status or, when Setting is not Missing, its
// setting.
type RuleAction struct {
	Link    int
	Status  LinkStatus
	Setting float64
}

type Rule struct {
	ID       string
	Premises []Premise
	Then     []RuleAction
	Else     []RuleAction
	Priority float64
}

func (r *Rule) Clone() *Rule {
	return &Rule{
		ID:       r.ID,
		Premises: append([]Premise(nil), r.Premises...),
		Then:     append([]RuleAction(nil), r.Then...),
		Else:     append([]RuleAction(nil), r.Else...),
		Priority: r.Priority,
	}
}

// RuleIndex returns the 1-based index of the rule with this id.
func (n *Network) RuleIndex(id string) (int, bool) {
	for i, r := range n.Rules {
		if key(r.ID) == key(id) {
			return i + 1, true
		}
	}
	return 0, false
}
