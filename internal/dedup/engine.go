package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

// Match carries the fields the duplicate rule looks at.
type Match struct {
	Email   string
	Name    string
	Company string
}

// MatchOf builds the normalized lookup key of p.
func MatchOf(p entity.PersonRecord) Match {
	return Match{
		Email:   strings.ToLower(strings.TrimSpace(p.Email)),
		Name:    strings.ToLower(strings.TrimSpace(p.Name)),
		Company: strings.ToLower(strings.TrimSpace(p.Company)),
	}
}

// Matches reports whether two people are the same under the duplicate rule:
// same email and name, or same email, or same name and company. Empty
// emails never match; an empty company equals an empty company.
func (m Match) Matches(o Match) bool {
	if m.Email != "" && m.Email == o.Email {
		return true
	}
	return m.Name != "" && m.Name == o.Name && m.Company == o.Company
}

// Lookup finds an existing record in scope matching m, or nil.
type Lookup interface {
	FindMatch(ctx context.Context, scope entity.Scope, m Match) (*entity.PersonRecord, error)
}

// Classification is the outcome for one candidate.
type Classification struct {
	IsNewToScope  bool
	ExistingMatch *entity.PersonRecord

	// Set for user scope only, when the candidate is new to the user but
	// already present in the shared corpus.
	IsDuplicateInMaster bool
	MasterReferenceID   *uuid.UUID
}

type Engine struct {
	lookup Lookup
	logger *slog.Logger
}

func NewEngine(lookup Lookup, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{lookup: lookup, logger: logger}
}

// Classify checks candidate against scope. For a user scope a candidate new
// to the user is also looked up in the shared corpus.
func (e *Engine) Classify(ctx context.Context, candidate entity.PersonRecord, scope entity.Scope) (Classification, error) {
	m := MatchOf(candidate)

	existing, err := e.lookup.FindMatch(ctx, scope, m)
	if err != nil {
		return Classification{}, fmt.Errorf("dedup lookup in %s: %w", scope, err)
	}
	if existing != nil {
		return Classification{IsNewToScope: false, ExistingMatch: existing}, nil
	}
	if scope.IsShared() {
		return Classification{IsNewToScope: true}, nil
	}

	master, err := e.lookup.FindMatch(ctx, entity.SharedScope(), m)
	if err != nil {
		return Classification{}, fmt.Errorf("dedup lookup in shared: %w", err)
	}
	c := Classification{IsNewToScope: true}
	if master != nil {
		id := master.ID
		c.IsDuplicateInMaster = true
		c.MasterReferenceID = &id
	}
	return c, nil
}

// Filter returns the records of people that should be persisted into scope,
// in input order. Duplicates within people itself are dropped as well.
func (e *Engine) Filter(ctx context.Context, people []entity.PersonRecord, scope entity.Scope) ([]entity.ScopedPersonRecord, error) {
	out := make([]entity.ScopedPersonRecord, 0, len(people))
	accepted := make([]Match, 0, len(people))
	var existing, inBatch, inMaster int

	for _, p := range people {
		m := MatchOf(p)
		if matchesAny(m, accepted) {
			inBatch++
			continue
		}

		c, err := e.Classify(ctx, p, scope)
		if err != nil {
			return nil, err
		}
		if !c.IsNewToScope {
			existing++
			continue
		}
		if c.IsDuplicateInMaster {
			inMaster++
		}

		accepted = append(accepted, m)
		out = append(out, entity.ScopedPersonRecord{
			PersonRecord:        p,
			UserID:              scope.UserID,
			IsDuplicateInMaster: c.IsDuplicateInMaster,
			MasterReferenceID:   c.MasterReferenceID,
		})
	}

	e.logger.Debug("dedup.filter",
		"scope", scope.Key(),
		"candidates", len(people),
		"kept", len(out),
		"dropped_existing", existing,
		"dropped_in_batch", inBatch,
		"duplicate_in_master", inMaster,
	)
	return out, nil
}

func matchesAny(m Match, seen []Match) bool {
	for _, s := range seen {
		if m.Matches(s) {
			return true
		}
	}
	return false
}
