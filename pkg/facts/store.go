// Package facts holds normalized assertions about users, skills,
// contributions, evidence items, and prior verifications. The store is a pure
// data container: lookup and insert only, no behavior.
//
// Facts are append-only. Once asserted for a given evaluation they are never
// mutated; a new evaluation asserts superseding facts instead.
package facts

import (
	"sync"
	"time"

	"github.com/provara/engine/pkg/contribution"
)

// Kind identifies the fact family a predicate belongs to.
type Kind string

const (
	KindSkill          Kind = "skill"
	KindIdentity       Kind = "identity"
	KindSubmission     Kind = "submission"
	KindEvidence       Kind = "evidence"
	KindVerification   Kind = "verification"
	KindManualOverride Kind = "manual_override"
)

// Well-known predicates.
const (
	PredicateLevel       = "level"        // skill: proficiency level, int
	PredicateAlias       = "alias"        // identity: known author alias, string
	PredicateEndorsement = "endorsements" // identity: endorsement count, int
	PredicateSubmittedAt = "submitted_at" // submission: time.Time
	PredicateStatus      = "status"       // verification / manual_override: contribution.Status
	PredicateVerified    = "verified_count" // identity: prior verified contributions, int
)

// Fact is a typed, immutable assertion (kind, subject, predicate, value).
type Fact struct {
	Kind      Kind   `json:"kind"`
	SubjectID string `json:"subject_id"`
	Predicate string `json:"predicate"`
	Value     any    `json:"value"`
}

// Store is a thread-safe append-only fact container.
type Store struct {
	mu    sync.RWMutex
	facts []Fact
	// by kind, then subject
	index map[Kind]map[string][]Fact
}

// NewStore returns an empty fact store.
func NewStore() *Store {
	return &Store{index: make(map[Kind]map[string][]Fact)}
}

// Assert appends a fact. Existing facts are never modified.
func (s *Store) Assert(f Fact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, f)
	byKind, ok := s.index[f.Kind]
	if !ok {
		byKind = make(map[string][]Fact)
		s.index[f.Kind] = byKind
	}
	byKind[f.SubjectID] = append(byKind[f.SubjectID], f)
}

// AssertAll appends every fact in fs.
func (s *Store) AssertAll(fs ...Fact) {
	for _, f := range fs {
		s.Assert(f)
	}
}

// Lookup returns all facts of the given kind about the subject, in assertion
// order. The returned slice is a copy.
func (s *Store) Lookup(kind Kind, subjectID string) []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := s.index[kind][subjectID]
	out := make([]Fact, len(found))
	copy(out, found)
	return out
}

// LookupPredicate returns facts of the given kind about the subject that
// carry the predicate.
func (s *Store) LookupPredicate(kind Kind, subjectID, predicate string) []Fact {
	var out []Fact
	for _, f := range s.Lookup(kind, subjectID) {
		if f.Predicate == predicate {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the total number of asserted facts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts)
}

// SkillLevels returns the user's asserted skills mapped to their levels.
// The subject of a skill fact is the user; the predicate names the skill.
func (s *Store) SkillLevels(userID string) map[string]int {
	out := make(map[string]int)
	for _, f := range s.Lookup(KindSkill, userID) {
		if lvl, ok := asInt(f.Value); ok {
			out[f.Predicate] = lvl
		}
	}
	return out
}

// IdentityAliases returns known author aliases for the user, including the
// user ID itself.
func (s *Store) IdentityAliases(userID string) []string {
	aliases := []string{userID}
	for _, f := range s.LookupPredicate(KindIdentity, userID, PredicateAlias) {
		if v, ok := f.Value.(string); ok {
			aliases = append(aliases, v)
		}
	}
	return aliases
}

// Endorsements returns the user's endorsement count, 0 when unknown.
func (s *Store) Endorsements(userID string) int {
	total := 0
	for _, f := range s.LookupPredicate(KindIdentity, userID, PredicateEndorsement) {
		if v, ok := asInt(f.Value); ok {
			total += v
		}
	}
	return total
}

// PriorVerifiedCount returns the user's verified-contribution count asserted
// by the surrounding platform, 0 when unknown.
func (s *Store) PriorVerifiedCount(userID string) int {
	total := 0
	for _, f := range s.LookupPredicate(KindIdentity, userID, PredicateVerified) {
		if v, ok := asInt(f.Value); ok {
			total += v
		}
	}
	return total
}

// SubmissionTimes returns the timestamps of the user's recorded submissions.
func (s *Store) SubmissionTimes(userID string) []time.Time {
	var out []time.Time
	for _, f := range s.LookupPredicate(KindSubmission, userID, PredicateSubmittedAt) {
		if t, ok := f.Value.(time.Time); ok {
			out = append(out, t)
		}
	}
	return out
}

// OverrideFor returns the manual-override status recorded for the
// contribution, if any. A manual override is asserted by an external human
// review and moves a flagged contribution on the next evaluation run.
func (s *Store) OverrideFor(contributionID string) (contribution.Status, bool) {
	overrides := s.LookupPredicate(KindManualOverride, contributionID, PredicateStatus)
	if len(overrides) == 0 {
		return "", false
	}
	// Latest override wins.
	last := overrides[len(overrides)-1]
	switch v := last.Value.(type) {
	case contribution.Status:
		return v, true
	case string:
		return contribution.Status(v), true
	}
	return "", false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// Skill asserts a skill fact for a user.
func Skill(userID, skill string, level int) Fact {
	return Fact{Kind: KindSkill, SubjectID: userID, Predicate: skill, Value: level}
}

// Alias asserts a known author alias for a user.
func Alias(userID, alias string) Fact {
	return Fact{Kind: KindIdentity, SubjectID: userID, Predicate: PredicateAlias, Value: alias}
}

// Endorsement asserts an endorsement count for a user.
func Endorsement(userID string, count int) Fact {
	return Fact{Kind: KindIdentity, SubjectID: userID, Predicate: PredicateEndorsement, Value: count}
}

// PriorVerified asserts a prior verified-contribution count for a user.
func PriorVerified(userID string, count int) Fact {
	return Fact{Kind: KindIdentity, SubjectID: userID, Predicate: PredicateVerified, Value: count}
}

// Submission asserts a submission timestamp for a user.
func Submission(userID string, at time.Time) Fact {
	return Fact{Kind: KindSubmission, SubjectID: userID, Predicate: PredicateSubmittedAt, Value: at}
}

// ManualOverride asserts a human-review override for a contribution.
func ManualOverride(contributionID string, status contribution.Status) Fact {
	return Fact{Kind: KindManualOverride, SubjectID: contributionID, Predicate: PredicateStatus, Value: status}
}

// Verification asserts the terminal status the engine assigned to a
// contribution.
func Verification(contributionID string, status contribution.Status) Fact {
	return Fact{Kind: KindVerification, SubjectID: contributionID, Predicate: PredicateStatus, Value: status}
}
