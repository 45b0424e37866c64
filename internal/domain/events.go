package domain

// EventType tags a broadcast event.
type EventType string

const (
	EventLobbyUpdate    EventType = "lobby_update"
	EventQuestion       EventType = "question"
	EventResults        EventType = "results"
	EventFinalStandings EventType = "final_standings"
	EventSessionAborted EventType = "session_aborted"
	// EventAnswerProgress is delivered to the admin connection only.
	EventAnswerProgress EventType = "answer_progress"
	// EventSnapshot is delivered to a single reconnecting player.
	EventSnapshot EventType = "snapshot"
)

// Event is the ordered server-to-client envelope. Seq increases by one per
// emitted event within a session, so clients can detect gaps and ordering bugs.
type Event struct {
	Seq     uint64    `json:"seq"`
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// RosterEntry is the public view of a player in lobby updates.
type RosterEntry struct {
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

// LobbyUpdate carries the quiz name and the roster in registration order.
type LobbyUpdate struct {
	QuizName string        `json:"quizName"`
	Roster   []RosterEntry `json:"roster"`
}

// QuestionBroadcast presents a question to players. Correctness flags are
// stripped; only option texts go over the wire before the question closes.
type QuestionBroadcast struct {
	Index            int      `json:"index"`
	Prompt           string   `json:"prompt"`
	Options          []string `json:"options"`
	TimeLimitSeconds int      `json:"timeLimitSeconds,omitempty"`
}

// PlayerScore pairs a display name with a cumulative score.
type PlayerScore struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// ResultsBroadcast reveals the outcome of a closed question: how many
// players picked each option, how many never answered, and the correct index.
type ResultsBroadcast struct {
	Index        int           `json:"index"`
	OptionCounts []int         `json:"optionCounts"`
	Unanswered   int           `json:"unanswered"`
	CorrectIndex int           `json:"correctIndex"`
	Scores       []PlayerScore `json:"scores"`
}

// FinalStandings ranks players by descending score, ties broken by
// registration order.
type FinalStandings struct {
	Standings []Standing `json:"standings"`
}

// SessionAborted tells connections the session ended abnormally.
type SessionAborted struct {
	Reason string `json:"reason"`
}

// AnswerProgress is the admin-only live view of answer collection.
type AnswerProgress struct {
	Index     int `json:"index"`
	Answered  int `json:"answered"`
	Connected int `json:"connected"`
}

// Snapshot resynchronizes a reconnecting player without replaying history.
type Snapshot struct {
	Phase         Phase              `json:"phase"`
	QuestionIndex int                `json:"questionIndex"`
	Question      *QuestionBroadcast `json:"question,omitempty"`
	AnswerStatus  AnswerStatus       `json:"answerStatus"`
	Scores        []PlayerScore      `json:"scores"`
}
