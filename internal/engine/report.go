// internal/engine/report.go
package engine

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/solatis/recordkeeper/internal/types"
)

// SelectorResult summarises one selector within a pass.
type SelectorResult struct {
	Name     string
	Priority *float64
	Matched  int
	Affected int
	Changes  int // property changes written
	Records  int // distinct records changed
	Skipped  int // targets left to an override
}

// OverrideResult summarises one resolved override within a pass.
type OverrideResult struct {
	Name     string
	RecordID types.RecordID
	Changes  int
}

// Report is the outcome of Engine.Run.
type Report struct {
	RunID       types.RunID
	Fingerprint string

	Selectors  []SelectorResult
	Overrides  []OverrideResult
	Invalid    []string // selectors skipped as invalid
	Unresolved []string // overrides skipped as unresolved or invalid
	Conflicts  []Conflict

	TotalChanges int
	TotalRecords int

	StartedAt time.Time
	Duration  time.Duration
}

// Fingerprint content-addresses the inputs of a pass: selector and override
// names in order, plus the sorted record IDs. Two passes with the same
// fingerprint ran the same configuration over the same record set.
func Fingerprint(records types.Records, selectors types.SelectorSet, overrides types.OverrideSet) string {
	h := sha256.New()
	for _, ns := range selectors {
		h.Write([]byte("s:" + ns.Name + "\x00"))
	}
	for _, no := range overrides {
		h.Write([]byte("o:" + no.Name + "\x00"))
	}
	for _, id := range records.SortedIDs() {
		h.Write([]byte("r:" + id + "\x00"))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
