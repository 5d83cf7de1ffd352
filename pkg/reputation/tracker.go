// Package reputation maintains the per-user running reputation derived from
// verified-contribution history. Scores are read during evaluation and
// written only after a contribution reaches a terminal state.
//
// The tracker is a keyed store with single-writer-per-key discipline: all
// reads and commits for one user are serialized through that user's lock so
// two concurrent evaluations can never both read a stale record and
// double-count a reputation bonus.
package reputation

import (
	"math"
	"sync"
)

// Per-factor point values. A record's raw score is the capped sum of its
// factors; Score normalizes by maxRawPoints into [0,1].
const (
	PointsPerVerified    = 2.0
	PointsPerSkill       = 3.0
	PointsPerEndorsement = 2.0
	PointsImpactScale    = 10.0

	CapVerified     = 20
	CapSkills       = 10
	CapEndorsements = 15
)

const maxRawPoints = PointsPerVerified*CapVerified +
	PointsPerSkill*CapSkills +
	PointsPerEndorsement*CapEndorsements +
	PointsImpactScale

// Record is a user's reputation state. The stored counters only ever grow;
// administrative resets happen outside this engine.
type Record struct {
	UserID              string  `json:"user_id"`
	VerifiedCount       int     `json:"verified_count"`
	SkillDiversityCount int     `json:"skill_diversity_count"`
	EndorsementCount    int     `json:"endorsement_count"`
	TotalImpactWeight   float64 `json:"total_impact_weight"`
}

// AverageImpactWeight is TotalImpactWeight over VerifiedCount, 0 for a fresh
// record. Derived rather than stored so the stored fields stay monotone.
func (r Record) AverageImpactWeight() float64 {
	if r.VerifiedCount == 0 {
		return 0
	}
	return r.TotalImpactWeight / float64(r.VerifiedCount)
}

// Outcome describes a finalized contribution for commit purposes.
type Outcome struct {
	Verified     bool
	Skill        string  // skill/category exercised by the contribution
	ImpactWeight float64 // normalized impact in [0,1]
	Endorsements int     // endorsements gathered during review
}

type userEntry struct {
	// serial is the engine-facing per-user serialization lock; record state
	// itself is guarded by the tracker's mutex.
	serial sync.Mutex
	record Record
	skills map[string]bool
}

// Tracker is the keyed reputation store.
type Tracker struct {
	mu    sync.Mutex
	users map[string]*userEntry
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{users: make(map[string]*userEntry)}
}

func (t *Tracker) entry(userID string) *userEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.users[userID]
	if !ok {
		e = &userEntry{record: Record{UserID: userID}, skills: make(map[string]bool)}
		t.users[userID] = e
	}
	return e
}

// LockUser acquires the user's serialization lock and returns the unlock
// function. The engine holds this lock from the reputation read of an
// evaluation through its commit.
func (t *Tracker) LockUser(userID string) func() {
	e := t.entry(userID)
	e.serial.Lock()
	return e.serial.Unlock
}

// Score returns the user's reputation normalized to [0,1]. An unknown user is
// a fresh user with score 0, not an error.
func (t *Tracker) Score(userID string) float64 {
	r := t.Record(userID)
	raw := PointsPerVerified*math.Min(float64(r.VerifiedCount), CapVerified) +
		PointsPerSkill*math.Min(float64(r.SkillDiversityCount), CapSkills) +
		PointsPerEndorsement*math.Min(float64(r.EndorsementCount), CapEndorsements) +
		PointsImpactScale*math.Min(r.AverageImpactWeight(), 1.0)
	return raw / maxRawPoints
}

// Record returns a copy of the user's current record.
func (t *Tracker) Record(userID string) Record {
	t.mu.Lock()
	e, ok := t.users[userID]
	t.mu.Unlock()
	if !ok {
		return Record{UserID: userID}
	}
	return e.record
}

// Seed installs a user's prior history imported from platform facts. It only
// applies while the user's record is still untouched; once anything has been
// committed or seeded, Seed is a no-op so it can never rewind engine state.
func (t *Tracker) Seed(userID string, record Record, skills []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.users[userID]
	if ok && (e.record != (Record{UserID: userID}) || len(e.skills) > 0) {
		return
	}
	if !ok {
		e = &userEntry{}
		t.users[userID] = e
	}
	record.UserID = userID
	e.record = record
	e.skills = make(map[string]bool, len(skills))
	for _, s := range skills {
		e.skills[s] = true
	}
	if e.record.SkillDiversityCount < len(e.skills) {
		e.record.SkillDiversityCount = len(e.skills)
	}
}

// Commit applies a finalized contribution outcome to the user's record.
// Called exactly once per finalized contribution. All counters are
// monotonically non-decreasing.
func (t *Tracker) Commit(userID string, outcome Outcome) {
	if !outcome.Verified {
		// Rejected contributions never lower a record; they simply add
		// nothing.
		return
	}
	e := t.entry(userID)
	t.mu.Lock()
	defer t.mu.Unlock()
	e.record.VerifiedCount++
	e.record.TotalImpactWeight += math.Max(outcome.ImpactWeight, 0)
	e.record.EndorsementCount += outcome.Endorsements
	if outcome.Skill != "" && !e.skills[outcome.Skill] {
		e.skills[outcome.Skill] = true
		e.record.SkillDiversityCount++
	}
}
