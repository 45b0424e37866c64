package domain

import (
	"fmt"
	"time"
)

// Phase is the current stage of a quiz session.
type Phase string

const (
	PhaseLobby          Phase = "lobby"
	PhaseQuestionActive Phase = "question_active"
	PhaseQuestionClosed Phase = "question_closed"
	PhaseFinished       Phase = "finished"
	PhaseAborted        Phase = "aborted"
)

// AnswerStatus tracks a player's standing on the current question.
type AnswerStatus string

const (
	AnswerPending   AnswerStatus = "unanswered"
	AnswerSubmitted AnswerStatus = "answered"
	AnswerTimedOut  AnswerStatus = "timed_out"
)

// Option represents a possible answer for a question.
type Option struct {
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"correct" yaml:"correct"`
}

// Question models an MCQ question. TimeLimitSeconds of zero means the
// question stays open until the admin closes it.
type Question struct {
	Prompt           string   `json:"prompt" yaml:"prompt"`
	Options          []Option `json:"options" yaml:"options"`
	TimeLimitSeconds int      `json:"timeLimitSeconds,omitempty" yaml:"time_limit_seconds,omitempty"`
}

// CorrectIndex returns the index of the first option flagged correct, or -1.
func (q Question) CorrectIndex() int {
	for i, opt := range q.Options {
		if opt.Correct {
			return i
		}
	}
	return -1
}

// Quiz is an ordered, immutable sequence of questions.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Validate rejects quiz definitions the engine cannot run.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz %q: %w", q.ID, ErrEmptyQuiz)
	}
	for i, question := range q.Questions {
		if len(question.Options) < 2 {
			return fmt.Errorf("quiz %q question %d: needs at least two options", q.ID, i)
		}
		if question.CorrectIndex() < 0 {
			return fmt.Errorf("quiz %q question %d: no option is marked correct", q.ID, i)
		}
	}
	return nil
}

// Player is the registry's view of one participant. The identifier is
// stable for the session lifetime; only Connected flips on disconnect.
type Player struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Score        int          `json:"score"`
	Connected    bool         `json:"connected"`
	AnswerStatus AnswerStatus `json:"answerStatus"`
	JoinedAt     time.Time    `json:"-"`
}

// LedgerEntry records one answer submission. At most one entry exists per
// (player, question) pair; Elapsed is measured from question start.
type LedgerEntry struct {
	PlayerID    string
	Question    int
	OptionIndex int
	Elapsed     time.Duration
}

// Standing is one row of the final scoreboard.
type Standing struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}
