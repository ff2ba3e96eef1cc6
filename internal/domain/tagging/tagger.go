// Package tagging evaluates declarative rule sets against server
// query snapshots to produce tag sets. Rules are registered
// explicitly at construction; prerequisite tags only order
// evaluation, they do not guarantee presence.
package tagging

import (
	"fmt"

	"serverstf/internal/domain/query"
	"serverstf/internal/domain/server"
)

// Predicate decides whether a rule's tag applies. Predicates must be
// pure: no I/O, no mutation of their arguments. The applied set holds
// the tags accepted so far in evaluation order; prerequisites must be
// checked against it explicitly.
type Predicate func(info *query.Info, players *query.PlayerList, rules *query.Rules, applied server.Tags) bool

// Rule binds a tag name to the predicate that decides it. Requires
// lists tags whose rules must be evaluated first.
type Rule struct {
	Tag       string
	Requires  []string
	Predicate Predicate
}

// RegistrationError is returned by New for duplicate tag names or
// prerequisites that no rule defines.
type RegistrationError struct {
	Tag    string
	Reason string
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	return fmt.Sprintf("cannot register tag rule %q: %s", e.Tag, e.Reason)
}

// CyclicDependencyError is returned by New when rule prerequisites
// form a cycle.
type CyclicDependencyError struct {
	Tag string
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("tag rule %q has cyclic prerequisites", e.Tag)
}

// Tagger evaluates a fixed rule set in topological prerequisite
// order.
type Tagger struct {
	ordered []Rule
}

// New builds a Tagger from the given rules. It rejects duplicate tag
// names, unresolved prerequisites and cyclic prerequisite graphs.
func New(rules ...Rule) (*Tagger, error) {
	byTag := make(map[string]Rule, len(rules))
	for _, rule := range rules {
		if rule.Predicate == nil {
			return nil, &RegistrationError{Tag: rule.Tag, Reason: "nil predicate"}
		}
		if _, ok := byTag[rule.Tag]; ok {
			return nil, &RegistrationError{Tag: rule.Tag, Reason: "duplicate implementation"}
		}
		byTag[rule.Tag] = rule
	}
	for _, rule := range rules {
		for _, dep := range rule.Requires {
			if _, ok := byTag[dep]; !ok {
				return nil, &RegistrationError{
					Tag:    rule.Tag,
					Reason: fmt.Sprintf("prerequisite %q does not exist", dep),
				}
			}
		}
	}

	ordered, err := sortRules(rules, byTag)
	if err != nil {
		return nil, err
	}
	return &Tagger{ordered: ordered}, nil
}

// sortRules orders rules so every prerequisite's rule comes before
// its dependents. Depth-first with a temporary mark for cycle
// detection.
func sortRules(rules []Rule, byTag map[string]Rule) ([]Rule, error) {
	var (
		ordered []Rule
		done    = make(map[string]bool, len(rules))
		onPath  = make(map[string]bool, len(rules))
	)

	var visit func(rule Rule) error
	visit = func(rule Rule) error {
		if onPath[rule.Tag] {
			return &CyclicDependencyError{Tag: rule.Tag}
		}
		if done[rule.Tag] {
			return nil
		}
		onPath[rule.Tag] = true
		for _, dep := range rule.Requires {
			if err := visit(byTag[dep]); err != nil {
				return err
			}
		}
		delete(onPath, rule.Tag)
		done[rule.Tag] = true
		ordered = append(ordered, rule)
		return nil
	}

	for _, rule := range rules {
		if err := visit(rule); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// Evaluate runs every rule against the given snapshots and returns
// the set of tags whose predicates accepted.
func (t *Tagger) Evaluate(info *query.Info, players *query.PlayerList, rules *query.Rules) server.Tags {
	applied := server.NewTags()
	for _, rule := range t.ordered {
		if rule.Predicate(info, players, rules, applied) {
			applied.Add(rule.Tag)
		}
	}
	return applied
}
