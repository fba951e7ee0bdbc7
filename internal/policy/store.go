package policy

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/shepherd/internal/errors"
)

// ruleSet is an immutable, versioned rule list. Once published it is never
// modified, so readers need no lock.
type ruleSet struct {
	rules   []Rule
	version uint64
}

// Store holds the ordered rule list. Readers load the current ruleSet
// atomically; writers serialize on mu and publish a fresh copy, so a reader
// never observes a half-applied update.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[ruleSet]
}

// NewStore creates a Store seeded with rules. Every rule is validated; an
// invalid rule or a duplicate id fails construction.
func NewStore(rules ...Rule) (*Store, error) {
	s := &Store{}
	s.current.Store(&ruleSet{})
	if len(rules) > 0 {
		if err := s.Replace(rules); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// snapshot returns the current rule set without copying. Callers must not
// modify it.
func (s *Store) snapshot() *ruleSet {
	return s.current.Load()
}

// Rules returns a copy of the rules in evaluation order.
func (s *Store) Rules() []Rule {
	set := s.snapshot()
	out := make([]Rule, len(set.rules))
	for i, r := range set.rules {
		out[i] = cloneRule(r)
	}
	return out
}

// Get returns the rule with the given id.
func (s *Store) Get(id string) (Rule, bool) {
	for _, r := range s.snapshot().rules {
		if r.ID == id {
			return cloneRule(r), true
		}
	}
	return Rule{}, false
}

// Len returns the number of rules.
func (s *Store) Len() int {
	return len(s.snapshot().rules)
}

// Version increases by one with every successful write.
func (s *Store) Version() uint64 {
	return s.snapshot().version
}

// Upsert replaces the rule with the same id in place, or appends it.
func (s *Store) Upsert(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.Update(func(rules []Rule) ([]Rule, error) {
		if i := indexOf(rules, rule.ID); i >= 0 {
			rules[i] = rule
			return rules, nil
		}
		return append(rules, rule), nil
	})
}

// Remove deletes the rule with the given id.
func (s *Store) Remove(id string) error {
	return s.Update(func(rules []Rule) ([]Rule, error) {
		i := indexOf(rules, id)
		if i < 0 {
			return nil, errors.NewNotFoundError("policy rule", id)
		}
		return slices.Delete(rules, i, i+1), nil
	})
}

// Enable turns a rule on.
func (s *Store) Enable(id string) error {
	return s.setEnabled(id, true)
}

// Disable turns a rule off without removing it.
func (s *Store) Disable(id string) error {
	return s.setEnabled(id, false)
}

func (s *Store) setEnabled(id string, enabled bool) error {
	return s.Update(func(rules []Rule) ([]Rule, error) {
		i := indexOf(rules, id)
		if i < 0 {
			return nil, errors.NewNotFoundError("policy rule", id)
		}
		rules[i].Enabled = enabled
		return rules, nil
	})
}

// Replace swaps the whole rule list. Later duplicates of an id replace earlier
// ones in place.
func (s *Store) Replace(rules []Rule) error {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return s.Update(func([]Rule) ([]Rule, error) {
		out := make([]Rule, 0, len(rules))
		for _, r := range rules {
			if i := indexOf(out, r.ID); i >= 0 {
				out[i] = cloneRule(r)
				continue
			}
			out = append(out, cloneRule(r))
		}
		return out, nil
	})
}

// Update applies fn to a private copy of the rule list and publishes the
// result as one version. If fn fails or returns an invalid rule the store is
// left unchanged.
func (s *Store) Update(fn func(rules []Rule) ([]Rule, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snapshot()
	working := make([]Rule, len(cur.rules))
	for i, r := range cur.rules {
		working[i] = cloneRule(r)
	}

	next, err := fn(working)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(next))
	for _, r := range next {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.ID] {
			return errors.NewConfigError("duplicate rule id", errors.ErrInvalidRule).WithRuleID(r.ID)
		}
		seen[r.ID] = true
	}

	s.current.Store(&ruleSet{rules: next, version: cur.version + 1})
	return nil
}

func indexOf(rules []Rule, id string) int {
	return slices.IndexFunc(rules, func(r Rule) bool { return r.ID == id })
}

func cloneRule(r Rule) Rule {
	r.Conditions = slices.Clone(r.Conditions)
	r.Actions = slices.Clone(r.Actions)
	return r
}
