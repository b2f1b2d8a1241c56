// Package roster builds class sessions for tests.
//
// Example usage:
//
//	s := roster.NewBuilder(t).
//		WithFixture(roster.FixtureClassroom).
//		WithStudent("D", "Dee", "04").
//		Build()
package roster

import (
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/rollcall/internal/model"
)

// Builder provides a fluent interface for constructing test sessions.
type Builder interface {
	// WithSession overrides the session identity and schedule.
	WithSession(id, subject, class string) Builder

	// WithStudent adds one student. Duplicate ids are ignored.
	WithStudent(id, name, roll string) Builder

	// WithFixture adds the students of a predefined fixture.
	WithFixture(fixture Fixture) Builder

	// WithGenerated adds n students with ids a, b, ... z, ax, bx, ...
	WithGenerated(n int) Builder

	// StartedAt sets the session start time.
	StartedAt(at time.Time) Builder

	// Build returns the session with students in insertion order.
	Build() model.Session
}

type sessionBuilder struct {
	t       *testing.T
	session model.Session
	seen    map[string]struct{}
}

// NewBuilder creates a builder for a Physics 10-B session with an empty roster.
func NewBuilder(t *testing.T) Builder {
	t.Helper()
	return &sessionBuilder{
		t: t,
		session: model.Session{
			ID:          "S-1",
			SubjectName: "Physics",
			ClassName:   "10-B",
			Date:        "2026-03-02",
			StartTime:   "09:00",
			EndTime:     "09:45",
		},
		seen: make(map[string]struct{}),
	}
}

func (b *sessionBuilder) WithSession(id, subject, class string) Builder {
	b.session.ID = id
	b.session.SubjectName = subject
	b.session.ClassName = class
	return b
}

func (b *sessionBuilder) WithStudent(id, name, roll string) Builder {
	if id == "" {
		b.t.Fatalf("roster student needs an id")
	}
	if _, dup := b.seen[id]; dup {
		return b
	}
	b.seen[id] = struct{}{}
	b.session.Roster = append(b.session.Roster, model.Student{ID: id, Name: name, RollNumber: roll})
	return b
}

func (b *sessionBuilder) WithFixture(fixture Fixture) Builder {
	for _, s := range fixture.Students() {
		b.WithStudent(s.ID, s.Name, s.RollNumber)
	}
	return b
}

func (b *sessionBuilder) WithGenerated(n int) Builder {
	for i := 0; i < n; i++ {
		id := GeneratedID(i)
		b.WithStudent(id, "Student "+id, "")
	}
	return b
}

func (b *sessionBuilder) StartedAt(at time.Time) Builder {
	b.session.StartedAt = at
	return b
}

func (b *sessionBuilder) Build() model.Session {
	out := b.session
	out.Roster = append([]model.Student(nil), b.session.Roster...)
	return out
}

// GeneratedID is the id WithGenerated gives the i-th student.
func GeneratedID(i int) string {
	return string(rune('a'+i%26)) + strings.Repeat("x", i/26)
}

// Recognize returns one candidate per id, all with the same confidence.
func Recognize(confidence float64, ids ...string) []model.RecognitionCandidate {
	out := make([]model.RecognitionCandidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.RecognitionCandidate{StudentID: id, Confidence: confidence})
	}
	return out
}

// IDs returns the roster ids of s in order.
func IDs(s model.Session) []string {
	ids := make([]string, len(s.Roster))
	for i, student := range s.Roster {
		ids[i] = student.ID
	}
	return ids
}
