package toolkit

import (
	"aquanet/internal/core/errors"
	"aquanet/internal/engine/inp"
	"aquanet/internal/engine/network"
)

func (p *Project) RuleCount() int { return p.count(func(n *network.Network) int { return len(n.Rules) }) }

// AddRules parses rule text in input-file syntax and appends the rules.
// Nothing is added unless every rule parses.
func (p *Project) AddRules(text string) error {
	const op = "toolkit.AddRules"
	if err := p.live(op); err != nil {
		return err
	}
	rules, err := inp.ParseRules(p.net, text)
	if err != nil {
		return err
	}
	p.net.Rules = append(p.net.Rules, rules...)
	return nil
}

func (p *Project) RuleID(idx int) (string, error) {
	r, err := p.rule("toolkit.RuleID", idx)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// DeleteRule removes the rule at a 1-based index; later rules shift down.
func (p *Project) DeleteRule(idx int) error {
	if _, err := p.rule("toolkit.DeleteRule", idx); err != nil {
		return err
	}
	p.net.Rules = append(p.net.Rules[:idx-1], p.net.Rules[idx:]...)
	if len(p.net.Rules) == 0 {
		p.net.Rules = nil
	}
	return nil
}

func (p *Project) rule(op string, idx int) (*network.Rule, error) {
	if err := p.live(op); err != nil {
		return nil, err
	}
	if idx < 1 || idx > len(p.net.Rules) {
		return nil, errors.Enginef(op, errors.ErrUndefinedRule, "index %d", idx)
	}
	return p.net.Rules[idx-1], nil
}
