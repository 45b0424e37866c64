package app

import (
	"time"

	"quizhost/internal/domain"
)

// Ledger holds every answer submission of the session, keyed by question
// index and player id. Entries are created while a question is collecting
// answers and never deleted or overwritten afterwards.
//
// Like the registry, the ledger is owned by the Session and accessed only
// on its serialized mutation path.
type Ledger struct {
	entries map[int]map[string]domain.LedgerEntry
	graded  map[int]bool
}

func NewLedger() *Ledger {
	return &Ledger{
		entries: make(map[int]map[string]domain.LedgerEntry),
		graded:  make(map[int]bool),
	}
}

// Record stores a submission. A second submission for the same (player,
// question) pair is rejected, not overwritten.
func (l *Ledger) Record(playerID string, question, option int, elapsed time.Duration) error {
	byPlayer, ok := l.entries[question]
	if !ok {
		byPlayer = make(map[string]domain.LedgerEntry)
		l.entries[question] = byPlayer
	}
	if _, exists := byPlayer[playerID]; exists {
		return domain.ErrDuplicateAnswer
	}
	byPlayer[playerID] = domain.LedgerEntry{
		PlayerID:    playerID,
		Question:    question,
		OptionIndex: option,
		Elapsed:     elapsed,
	}
	return nil
}

// Entry returns a player's submission for a question, if one exists.
func (l *Ledger) Entry(question int, playerID string) (domain.LedgerEntry, bool) {
	e, ok := l.entries[question][playerID]
	return e, ok
}

// Count returns how many submissions exist for a question.
func (l *Ledger) Count(question int) int {
	return len(l.entries[question])
}

// Grade scores every entry of a question exactly once. It returns the
// per-option pick counts and the ids of players who chose the correct
// option. The second call for the same question is a no-op with ok=false,
// which keeps score increments idempotent across duplicate close triggers.
func (l *Ledger) Grade(question, optionCount, correctIndex int) (counts []int, credited []string, ok bool) {
	if l.graded[question] {
		return nil, nil, false
	}
	l.graded[question] = true

	counts = make([]int, optionCount)
	for _, e := range l.entries[question] {
		if e.OptionIndex < 0 || e.OptionIndex >= optionCount {
			continue
		}
		counts[e.OptionIndex]++
		if e.OptionIndex == correctIndex {
			credited = append(credited, e.PlayerID)
		}
	}
	return counts, credited, true
}
