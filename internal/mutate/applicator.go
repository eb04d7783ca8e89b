// Package mutate performs type-safe property mutations on records.
//
// Two primitives exist: set (replace a value with one of the same kind) and
// multiply (scale a numeric value). Each single-property attempt yields an
// Outcome and a structured log entry; nothing in this package returns an
// error or panics across a batch, so one bad path never blocks the rest of
// a selector.
package mutate

import (
	"errors"
	"log/slog"
	"math"

	"github.com/solatis/recordkeeper/internal/rules"
	"github.com/solatis/recordkeeper/internal/types"
)

// Mode selects which primitive a mutation batch uses.
type Mode int

const (
	ModeSet Mode = iota
	ModeMultiply
)

func (m Mode) String() string {
	if m == ModeMultiply {
		return "multiply"
	}
	return "set"
}

// Outcome is the result of one single-property attempt.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeIdentical
	OutcomeTypeMismatch
	OutcomeMissing
	OutcomePathFault
	OutcomeInvalidMultiplier
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeIdentical:
		return "identical, skipped"
	case OutcomeTypeMismatch:
		return "type mismatch"
	case OutcomeMissing:
		return "missing property"
	case OutcomePathFault:
		return "path fault"
	case OutcomeInvalidMultiplier:
		return "invalid multiplier"
	default:
		return "unknown"
	}
}

// Count converts an outcome into the applied count (0 or 1).
func (o Outcome) Count() int {
	if o == OutcomeApplied {
		return 1
	}
	return 0
}

// Applicator validates and applies mutations through a path resolver.
type Applicator struct {
	resolver rules.Resolver
	logger   *slog.Logger
}

// New creates an Applicator. A nil logger discards log entries.
func New(resolver rules.Resolver, logger *slog.Logger) *Applicator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Applicator{resolver: resolver, logger: logger}
}

// CanApplySet reports whether path currently holds a value of the same kind
// as value.
func (a *Applicator) CanApplySet(record types.Record, path string, value any) bool {
	_, outcome := a.checkSet(record, path, value)
	return outcome == OutcomeApplied
}

// CanApplyMultiply reports whether path holds a number and multiplier is a
// number, neither of them NaN.
func (a *Applicator) CanApplyMultiply(record types.Record, path string, multiplier any) bool {
	_, _, outcome := a.checkMultiply(record, path, multiplier)
	return outcome == OutcomeApplied
}

// CanApplyAny reports whether at least one mutation is type-compatible with
// record for the given mode. Nothing is mutated.
func (a *Applicator) CanApplyAny(record types.Record, mutations types.Mutations, mode Mode) bool {
	for _, m := range mutations {
		switch mode {
		case ModeMultiply:
			if a.CanApplyMultiply(record, m.Path, m.Value) {
				return true
			}
		default:
			if a.CanApplySet(record, m.Path, m.Value) {
				return true
			}
		}
	}
	return false
}

// ApplySet replaces the value at path and returns the applied count.
func (a *Applicator) ApplySet(id types.RecordID, record types.Record, path string, value any) int {
	return a.AttemptSet(id, record, path, value).Count()
}

// ApplyMultiply scales the value at path and returns the applied count.
func (a *Applicator) ApplyMultiply(id types.RecordID, record types.Record, path string, multiplier any) int {
	return a.AttemptMultiply(id, record, path, multiplier).Count()
}

// AttemptSet is ApplySet returning the detailed outcome.
func (a *Applicator) AttemptSet(id types.RecordID, record types.Record, path string, value any) Outcome {
	old, outcome := a.checkSet(record, path, value)
	if outcome == OutcomeApplied && rules.Equal(old, value) {
		outcome = OutcomeIdentical
	}
	if outcome == OutcomeApplied {
		if err := a.resolver.Write(record, path, value); err != nil {
			outcome = OutcomePathFault
		}
	}
	a.log(id, ModeSet, path, old, value, outcome)
	return outcome
}

// AttemptMultiply is ApplyMultiply returning the detailed outcome.
func (a *Applicator) AttemptMultiply(id types.RecordID, record types.Record, path string, multiplier any) Outcome {
	old, product, outcome := a.checkMultiply(record, path, multiplier)
	if outcome == OutcomeApplied && product == old {
		outcome = OutcomeIdentical
	}
	var logged any
	if outcome == OutcomeApplied || outcome == OutcomeIdentical {
		logged = product
	}
	if outcome == OutcomeApplied {
		if err := a.resolver.Write(record, path, product); err != nil {
			outcome = OutcomePathFault
		}
	}
	a.log(id, ModeMultiply, path, old, logged, outcome)
	return outcome
}

// ApplyAllSet applies every set mutation independently and returns the sum
// of applied counts.
func (a *Applicator) ApplyAllSet(id types.RecordID, record types.Record, mutations types.Mutations) int {
	total := 0
	for _, m := range mutations {
		total += a.ApplySet(id, record, m.Path, m.Value)
	}
	return total
}

// ApplyAllMultiply applies every multiply mutation independently and
// returns the sum of applied counts.
func (a *Applicator) ApplyAllMultiply(id types.RecordID, record types.Record, mutations types.Mutations) int {
	total := 0
	for _, m := range mutations {
		total += a.ApplyMultiply(id, record, m.Path, m.Value)
	}
	return total
}

// checkSet returns the current value and OutcomeApplied when a set is legal.
func (a *Applicator) checkSet(record types.Record, path string, value any) (any, Outcome) {
	resolved, err := a.resolver.Read(record, path)
	if err != nil {
		return nil, faultOutcome(err)
	}
	if !resolved.Found {
		return nil, OutcomeMissing
	}
	current := rules.KindOf(resolved.Value)
	if current == rules.KindUnknown || current != rules.KindOf(value) {
		return resolved.Value, OutcomeTypeMismatch
	}
	return resolved.Value, OutcomeApplied
}

// checkMultiply returns the current number, the product and OutcomeApplied
// when a multiply is legal.
func (a *Applicator) checkMultiply(record types.Record, path string, multiplier any) (any, float64, Outcome) {
	factor, ok := rules.Number(multiplier)
	if !ok {
		return nil, 0, OutcomeInvalidMultiplier
	}
	resolved, err := a.resolver.Read(record, path)
	if err != nil {
		return nil, 0, faultOutcome(err)
	}
	if !resolved.Found {
		return nil, 0, OutcomeMissing
	}
	current, ok := rules.Number(resolved.Value)
	if !ok {
		return resolved.Value, 0, OutcomeTypeMismatch
	}
	product := current * factor
	if math.IsNaN(product) || math.IsInf(product, 0) {
		return current, 0, OutcomeInvalidMultiplier
	}
	return current, product, OutcomeApplied
}

// faultOutcome maps resolver errors onto outcomes.
func faultOutcome(err error) Outcome {
	if errors.Is(err, types.ErrFieldNotFound) {
		return OutcomeMissing
	}
	return OutcomePathFault
}

func (a *Applicator) log(id types.RecordID, mode Mode, path string, old, value any, outcome Outcome) {
	attrs := []any{
		slog.String("record", id),
		slog.String("mode", mode.String()),
		slog.String("path", path),
		slog.Any("old", old),
		slog.Any("new", value),
		slog.String("outcome", outcome.String()),
	}
	switch outcome {
	case OutcomeApplied:
		a.logger.Info("property changed", attrs...)
	case OutcomeIdentical:
		a.logger.Debug("property unchanged", attrs...)
	default:
		a.logger.Warn("property skipped", attrs...)
	}
}
