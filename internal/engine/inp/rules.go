package inp

import (
	"bufio"
	"fmt"
	"strings"

	"aquanet/internal/core/errors"
	"aquanet/internal/engine/network"
)

type clause int

const (
	clauseNone clause = iota
	clauseIf
	clauseThen
	clauseElse
	clausePriority
)

// ruleState tracks the rule being read across [RULES] lines.
type ruleState struct {
	rule   *network.Rule
	start  line
	clause clause
	broken bool
}

var ruleOperators = map[string]network.RuleOperator{
	"=": network.OpEqual, "IS": network.OpEqual,
	"<>": network.OpNotEqual, "NOT": network.OpNotEqual,
	"<": network.OpLess, "BELOW": network.OpLess,
	"<=": network.OpLessEqual,
	">": network.OpGreater, "ABOVE": network.OpGreater,
	">=": network.OpGreaterEqual,
}

var ruleVariables = map[string]network.RuleVariable{
	"DEMAND": network.RuleDemand, "HEAD": network.RuleHead, "GRADE": network.RuleHead,
	"LEVEL": network.RuleLevel, "PRESSURE": network.RulePressure,
	"FILLTIME": network.RuleFillTime, "DRAINTIME": network.RuleDrainTime,
	"FLOW": network.RuleFlow, "STATUS": network.RuleStatus, "SETTING": network.RuleSetting,
	"TIME": network.RuleTime, "CLOCKTIME": network.RuleClockTime,
}

// RULE id / IF|AND|OR premise / THEN|AND|ELSE action / PRIORITY value
func (rd *reader) rule(ln line) {
	st := &rd.rules
	kw := strings.ToUpper(ln.fields[0])
	if kw == "RULE" {
		rd.endRule()
		if !rd.need(ln, 2) {
			return
		}
		if _, dup := rd.net.RuleIndex(ln.fields[1]); dup {
			rd.fail(ln, errors.ErrDuplicateID)
			return
		}
		*st = ruleState{rule: &network.Rule{ID: ln.fields[1]}, start: ln}
		return
	}
	if st.rule == nil {
		rd.fail(ln, errors.ErrSyntax)
		return
	}
	if st.broken {
		return
	}
	ok := false
	switch {
	case kw == "IF" && st.clause == clauseNone:
		st.clause = clauseIf
		ok = rd.premise(ln, false)
	case kw == "OR" && st.clause == clauseIf:
		ok = rd.premise(ln, true)
	case kw == "AND" && st.clause == clauseIf:
		ok = rd.premise(ln, false)
	case kw == "THEN" && st.clause == clauseIf:
		st.clause = clauseThen
		ok = rd.action(ln, &st.rule.Then)
	case kw == "AND" && st.clause == clauseThen:
		ok = rd.action(ln, &st.rule.Then)
	case kw == "ELSE" && st.clause == clauseThen:
		st.clause = clauseElse
		ok = rd.action(ln, &st.rule.Else)
	case kw == "AND" && st.clause == clauseElse:
		ok = rd.action(ln, &st.rule.Else)
	case kw == "PRIORITY" && (st.clause == clauseThen || st.clause == clauseElse):
		st.clause = clausePriority
		if rd.need(ln, 2) {
			st.rule.Priority, ok = rd.number(ln, ln.fields[1])
		}
	default:
		rd.fail(ln, errors.ErrSyntax)
	}
	if !ok {
		st.broken = true
	}
}

// endRule commits the rule being read once it has a premise and an action.
func (rd *reader) endRule() {
	st := &rd.rules
	if st.rule == nil {
		return
	}
	r, broken := st.rule, st.broken
	if !broken && (len(r.Premises) == 0 || len(r.Then) == 0) {
		// finish may run with another section current
		current := rd.current
		rd.current = "RULES"
		rd.fail(st.start, errors.ErrSyntax)
		rd.current = current
		broken = true
	}
	if !broken {
		rd.net.Rules = append(rd.net.Rules, r)
	}
	*st = ruleState{}
}

// object id variable operator value, or SYSTEM variable operator value
func (rd *reader) premise(ln line, or bool) bool {
	f := ln.fields[1:]
	if len(f) < 4 {
		rd.fail(ln, errors.ErrSyntax)
		return false
	}
	p := network.Premise{Or: or}
	obj := strings.ToUpper(f[0])
	var rest []string
	switch obj {
	case "SYSTEM":
		p.Object = network.RuleSystem
		rest = f[1:]
	case "NODE", "JUNCTION", "RESERVOIR", "TANK":
		p.Object = network.RuleNode
		idx, ok := rd.nodeRef(ln, f[1])
		if !ok {
			return false
		}
		if !nodeMatches(obj, rd.net.Node(idx).Kind) {
			rd.fail(ln, errors.ErrUndefinedNode)
			return false
		}
		p.Index = idx
		rest = f[2:]
	case "LINK", "PIPE", "PUMP", "VALVE":
		p.Object = network.RuleLink
		idx, ok := rd.linkRef(ln, f[1])
		if !ok {
			return false
		}
		if !linkMatches(obj, rd.net.Link(idx).Kind) {
			rd.fail(ln, errors.ErrUndefinedLink)
			return false
		}
		p.Index = idx
		rest = f[2:]
	default:
		rd.fail(ln, errors.ErrSyntax)
		return false
	}
	if len(rest) < 3 {
		rd.fail(ln, errors.ErrSyntax)
		return false
	}
	v, ok := ruleVariables[strings.ToUpper(rest[0])]
	op, opOK := ruleOperators[strings.ToUpper(rest[1])]
	if !ok || !opOK || !variableFits(p.Object, v) {
		rd.fail(ln, errors.ErrSyntax)
		return false
	}
	if (v == network.RuleFillTime || v == network.RuleDrainTime) && rd.net.Node(p.Index).Kind != network.Tank {
		rd.fail(ln, errors.ErrUndefinedNode)
		return false
	}
	p.Variable, p.Operator = v, op
	var err error
	switch v {
	case network.RuleStatus:
		if op != network.OpEqual && op != network.OpNotEqual {
			rd.fail(ln, errors.ErrSyntax)
			return false
		}
		if p.Status, ok = parseRuleStatus(rest[2], true); !ok {
			rd.fail(ln, errors.ErrSyntax)
			return false
		}
	case network.RuleClockTime:
		var secs int64
		secs, err = ParseClock(rest[2:])
		p.Value = float64(secs)
	case network.RuleTime, network.RuleFillTime, network.RuleDrainTime:
		var secs int64
		secs, err = ParseDuration(rest[2:])
		p.Value = float64(secs)
	default:
		if p.Value, ok = rd.number(ln, rest[2]); !ok {
			return false
		}
	}
	if err != nil {
		rd.fail(ln, errors.ErrSyntax)
		return false
	}
	rd.rules.rule.Premises = append(rd.rules.rule.Premises, p)
	return true
}

// object id STATUS|SETTING IS value
func (rd *reader) action(ln line, dst *[]network.RuleAction) bool {
	f := ln.fields[1:]
	if len(f) < 5 || !strings.EqualFold(f[3], "IS") {
		rd.fail(ln, errors.ErrSyntax)
		return false
	}
	obj := strings.ToUpper(f[0])
	if obj != "LINK" && obj != "PIPE" && obj != "PUMP" && obj != "VALVE" {
		rd.fail(ln, errors.ErrSyntax)
		return false
	}
	idx, ok := rd.linkRef(ln, f[1])
	if !ok {
		return false
	}
	link := rd.net.Link(idx)
	if !linkMatches(obj, link.Kind) {
		rd.fail(ln, errors.ErrUndefinedLink)
		return false
	}
	if link.Kind == network.CVPipe {
		rd.fail(ln, errors.ErrControlCV)
		return false
	}
	a := network.RuleAction{Link: idx, Setting: network.Missing}
	switch strings.ToUpper(f[2]) {
	case "STATUS":
		if a.Status, ok = parseRuleStatus(f[4], false); !ok {
			rd.fail(ln, errors.ErrSyntax)
			return false
		}
	case "SETTING":
		if link.Kind.IsPipe() || link.Kind == network.GPV {
			rd.fail(ln, errors.ErrIllegalLinkProp)
			return false
		}
		v, ok := rd.number(ln, f[4])
		if !ok {
			return false
		}
		if v < 0 {
			rd.fail(ln, errors.ErrIllegalLinkProp)
			return false
		}
		a.Setting = v
		a.Status = network.StatusActive
		if link.Kind == network.Pump {
			a.Status = network.StatusOpen
			if v == 0 {
				a.Status = network.StatusClosed
			}
		}
	default:
		rd.fail(ln, errors.ErrSyntax)
		return false
	}
	*dst = append(*dst, a)
	return true
}

func parseRuleStatus(s string, allowActive bool) (network.LinkStatus, bool) {
	switch strings.ToUpper(s) {
	case "OPEN":
		return network.StatusOpen, true
	case "CLOSED":
		return network.StatusClosed, true
	case "ACTIVE":
		return network.StatusActive, allowActive
	}
	return 0, false
}

func nodeMatches(obj string, kind network.NodeKind) bool {
	switch obj {
	case "JUNCTION":
		return kind == network.Junction
	case "RESERVOIR":
		return kind == network.Reservoir
	case "TANK":
		return kind == network.Tank
	}
	return true
}

func linkMatches(obj string, kind network.LinkKind) bool {
	switch obj {
	case "PIPE":
		return kind.IsPipe()
	case "PUMP":
		return kind == network.Pump
	case "VALVE":
		return kind.IsValve()
	}
	return true
}

func variableFits(obj network.RuleObject, v network.RuleVariable) bool {
	switch obj {
	case network.RuleSystem:
		return v == network.RuleTime || v == network.RuleClockTime
	case network.RuleNode:
		return v <= network.RuleDrainTime
	}
	return v == network.RuleFlow || v == network.RuleStatus || v == network.RuleSetting
}

// ParseRules reads rule text in [RULES] syntax against an existing network
// without adding the rules to it.
func ParseRules(net *network.Network, text string) ([]*network.Rule, error) {
	rd := &reader{net: net, current: "RULES"}
	saved := net.Rules
	net.Rules = nil
	defer func() { net.Rules = saved }()

	sc := bufio.NewScanner(strings.NewReader(text))
	num := 0
	for sc.Scan() {
		num++
		raw := sc.Text()
		body := raw
		if i := strings.IndexByte(raw, ';'); i >= 0 {
			body = raw[:i]
		}
		fields := tokenize(strings.TrimSpace(body))
		if len(fields) == 0 {
			continue
		}
		rd.rule(line{num: num, fields: fields, raw: raw})
	}
	rd.endRule()
	if len(rd.errs) > 0 {
		return nil, &ParseError{Errors: rd.errs}
	}
	for _, r := range net.Rules {
		for _, old := range saved {
			if strings.EqualFold(old.ID, r.ID) {
				return nil, errors.Enginef("inp.ParseRules", errors.ErrDuplicateID, "rule %s", r.ID)
			}
		}
	}
	return net.Rules, nil
}

func (w *writer) rules() {
	w.header("RULES")
	for _, r := range w.net.Rules {
		fmt.Fprintf(w.w, "RULE %s\n", quote(r.ID))
		for i, p := range r.Premises {
			kw := "IF"
			switch {
			case i > 0 && p.Or:
				kw = "OR"
			case i > 0:
				kw = "AND"
			}
			fmt.Fprintf(w.w, "%s %s\n", kw, w.premise(p))
		}
		for i, a := range r.Then {
			kw := "THEN"
			if i > 0 {
				kw = "AND"
			}
			fmt.Fprintf(w.w, "%s %s\n", kw, w.action(a))
		}
		for i, a := range r.Else {
			kw := "ELSE"
			if i > 0 {
				kw = "AND"
			}
			fmt.Fprintf(w.w, "%s %s\n", kw, w.action(a))
		}
		if r.Priority != 0 {
			fmt.Fprintf(w.w, "PRIORITY %s\n", num(r.Priority))
		}
		fmt.Fprintln(w.w)
	}
}

func (w *writer) premise(p network.Premise) string {
	var subject string
	switch p.Object {
	case network.RuleSystem:
		subject = "SYSTEM"
	case network.RuleNode:
		n := w.net.Node(p.Index)
		subject = n.Kind.String() + " " + quote(n.ID)
	default:
		subject = linkObject(w.net.Link(p.Index))
	}
	op := p.Operator.String()
	var value string
	switch {
	case p.Variable == network.RuleStatus:
		op = "IS"
		if p.Operator == network.OpNotEqual {
			op = "NOT"
		}
		value = p.Status.String()
	case p.Variable.IsTime():
		value = FormatClock(int64(p.Value))
	default:
		value = num(p.Value)
	}
	return fmt.Sprintf("%s %s %s %s", subject, p.Variable, op, value)
}

func (w *writer) action(a network.RuleAction) string {
	subject := linkObject(w.net.Link(a.Link))
	if a.Setting != network.Missing {
		return subject + " SETTING IS " + num(a.Setting)
	}
	return subject + " STATUS IS " + a.Status.String()
}

func linkObject(l *network.Link) string {
	kw := "PIPE"
	switch {
	case l.Kind == network.Pump:
		kw = "PUMP"
	case l.Kind.IsValve():
		kw = "VALVE"
	}
	return kw + " " + quote(l.ID)
}
