package app

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"quizhost/internal/domain"
)

// SessionConfig carries the runtime knobs of one quiz run.
type SessionConfig struct {
	// TimeLimit is the session-wide answer window. Zero means questions
	// stay open until closed manually. A per-question limit in the quiz
	// definition takes precedence.
	TimeLimit time.Duration
	// MaxPlayers caps lobby size. Zero means unlimited.
	MaxPlayers int
}

// Session is the quiz state machine. It owns the phase, the current
// question index, the player registry and the answer ledger; nothing else
// mutates them. Every command, whether it comes from a connection handler
// or from the answer-window timer, runs to completion under one mutex, so
// phase transitions are totally ordered and every attached connection
// observes events in the same sequence.
type Session struct {
	quiz domain.Quiz
	cfg  SessionConfig
	log  *zap.Logger
	now  func() time.Time

	dispatcher *Dispatcher

	// onFinished is invoked once, off the mutation path, when the session
	// reaches the finished phase. Used by the host to archive results.
	onFinished func(domain.FinalStandings)

	mu            sync.Mutex
	phase         domain.Phase
	current       int
	registry      *Registry
	ledger        *Ledger
	questionStart time.Time
	timer         *time.Timer
}

func NewSession(quiz domain.Quiz, cfg SessionConfig, log *zap.Logger) *Session {
	return &Session{
		quiz:       quiz,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		dispatcher: NewDispatcher(log),
		phase:      domain.PhaseLobby,
		current:    -1,
		registry:   NewRegistry(),
		ledger:     NewLedger(),
	}
}

// Dispatcher exposes the fan-out for the transport layer.
func (s *Session) Dispatcher() *Dispatcher { return s.dispatcher }

// Quiz returns the immutable quiz definition this session runs.
func (s *Session) Quiz() domain.Quiz { return s.quiz }

// Phase returns the current phase.
func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// CurrentIndex returns the current question index, -1 before the first
// question opens.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// terminal reports whether no further commands can change the session.
func (s *Session) terminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == domain.PhaseFinished || s.phase == domain.PhaseAborted
}

// Join registers a new player and attaches their connection. Registration
// is only accepted in the lobby.
func (s *Session) Join(name string, sink Sink) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseLobby {
		return domain.Player{}, domain.ErrInvalidPhase
	}
	if s.cfg.MaxPlayers > 0 && s.registry.Len() >= s.cfg.MaxPlayers {
		return domain.Player{}, domain.ErrSessionFull
	}

	player, err := s.registry.Register(name, s.now())
	if err != nil {
		return domain.Player{}, err
	}

	s.dispatcher.Attach(player.ID, sink)
	s.log.Info("player joined",
		zap.String("player_id", player.ID),
		zap.String("name", player.Name),
	)
	s.broadcastLobbyLocked()
	return player, nil
}

// Reattach restores a returning player's connection and sends them a
// snapshot of the current state instead of replayed history. The caller
// must present the name the identifier was registered under; a mismatch is
// treated the same as an unknown identifier.
func (s *Session) Reattach(playerID, name string, sink Sink) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.registry.Get(playerID); !ok || existing.Name != name {
		return domain.Snapshot{}, domain.ErrUnknownPlayer
	}
	player, err := s.registry.Reattach(playerID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	s.dispatcher.Attach(playerID, sink)
	snapshot := s.snapshotLocked(player)
	s.dispatcher.ToPlayer(playerID, domain.EventSnapshot, snapshot)
	s.log.Info("player reattached",
		zap.String("player_id", playerID),
		zap.String("name", player.Name),
	)
	s.broadcastLobbyLocked()
	return snapshot, nil
}

// DisconnectPlayer marks a player's connection invalid. Session state is
// otherwise untouched: their answer-window opportunity simply lapses. If
// every remaining connected player has already answered, the question
// closes as usual.
//
// A non-nil sink restricts the disconnect to that exact connection, so a
// handler finishing up after its player already reconnected does not kick
// the replacement.
func (s *Session) DisconnectPlayer(playerID string, sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registry.Get(playerID); !ok {
		return
	}
	if sink != nil && !s.dispatcher.IsCurrent(playerID, sink) {
		return
	}
	s.registry.MarkDisconnected(playerID)
	s.dispatcher.Detach(playerID)
	s.log.Info("player disconnected", zap.String("player_id", playerID))

	if s.phase == domain.PhaseQuestionActive && s.registry.AllConnectedAnswered() {
		s.closeQuestionLocked()
		return
	}
	s.broadcastLobbyLocked()
}

// StartNextQuestion advances to the next question. Legal from the lobby
// and from a closed question with questions remaining.
func (s *Session) StartNextQuestion() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseLobby && s.phase != domain.PhaseQuestionClosed {
		return domain.ErrInvalidPhase
	}
	next := s.current + 1
	if next >= len(s.quiz.Questions) {
		return domain.ErrInvalidPhase
	}

	s.current = next
	s.phase = domain.PhaseQuestionActive
	s.questionStart = s.now()
	s.registry.ResetAnswerStatus()

	question := s.quiz.Questions[next]
	limit := s.answerWindow(question)
	if limit > 0 {
		index := next
		s.timer = time.AfterFunc(limit, func() { s.closeFromTimer(index) })
	}

	s.log.Info("question opened",
		zap.Int("index", next),
		zap.Duration("time_limit", limit),
	)
	s.dispatcher.Broadcast(domain.EventQuestion, s.questionBroadcastLocked(next))
	return nil
}

// CloseQuestion ends the answer window on the admin's request.
func (s *Session) CloseQuestion() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseQuestionActive {
		return domain.ErrInvalidPhase
	}
	s.closeQuestionLocked()
	return nil
}

// closeFromTimer is the deadline trigger. It enters the same serialized
// path as the manual close; if the question already closed (manually, or
// because everyone answered) the trigger is a stale no-op rather than an
// error.
func (s *Session) closeFromTimer(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseQuestionActive || s.current != index {
		return
	}
	s.log.Info("answer window expired", zap.Int("index", index))
	s.closeQuestionLocked()
}

// SubmitAnswer records a player's choice for the current question. When
// the last connected player answers, the question closes immediately.
func (s *Session) SubmitAnswer(playerID string, optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registry.Get(playerID); !ok {
		return domain.ErrUnknownPlayer
	}
	if s.phase != domain.PhaseQuestionActive {
		return domain.ErrInvalidPhase
	}
	question := s.quiz.Questions[s.current]
	if optionIndex < 0 || optionIndex >= len(question.Options) {
		return domain.ErrMalformedMessage
	}

	if err := s.ledger.Record(playerID, s.current, optionIndex, s.now().Sub(s.questionStart)); err != nil {
		return err
	}
	s.registry.SetAnswerStatus(playerID, domain.AnswerSubmitted)

	s.dispatcher.ToAdmin(domain.EventAnswerProgress, domain.AnswerProgress{
		Index:     s.current,
		Answered:  s.ledger.Count(s.current),
		Connected: s.registry.ConnectedCount(),
	})

	if s.registry.AllConnectedAnswered() {
		s.closeQuestionLocked()
	}
	return nil
}

// Finish ends the quiz early from a closed question. After the last
// question closes the session finishes on its own.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseQuestionClosed {
		return domain.ErrInvalidPhase
	}
	s.finishLocked()
	return nil
}

// Abort moves the session to its terminal aborted state, notifies every
// connection and tears them down. Used when the admin connection is lost.
func (s *Session) Abort(reason string) {
	s.mu.Lock()
	if s.phase == domain.PhaseFinished || s.phase == domain.PhaseAborted {
		s.mu.Unlock()
		return
	}
	s.phase = domain.PhaseAborted
	s.stopTimerLocked()
	s.log.Warn("session aborted", zap.String("reason", reason))
	s.dispatcher.Broadcast(domain.EventSessionAborted, domain.SessionAborted{Reason: reason})
	s.mu.Unlock()

	// Close outside the lock; queued events (the abort notice included)
	// still drain before each connection shuts down.
	s.dispatcher.CloseAll()
}

// Snapshot builds the resync view for one player.
func (s *Session) Snapshot(playerID string) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.registry.Get(playerID)
	if !ok {
		return domain.Snapshot{}, domain.ErrUnknownPlayer
	}
	return s.snapshotLocked(player), nil
}

// closeQuestionLocked performs the QUESTION_ACTIVE -> QUESTION_CLOSED
// transition: pending players are timed out, the ledger is graded exactly
// once, scores update, and the results event goes out. If this was the
// last question the session finishes immediately.
func (s *Session) closeQuestionLocked() {
	s.stopTimerLocked()
	s.phase = domain.PhaseQuestionClosed
	s.registry.TimeOutPending()

	question := s.quiz.Questions[s.current]
	correct := question.CorrectIndex()
	counts, credited, graded := s.ledger.Grade(s.current, len(question.Options), correct)
	if !graded {
		// Grading already happened; a duplicate close trigger slipped
		// through and must not emit a second results event.
		return
	}
	for _, id := range credited {
		s.registry.AddScore(id, 1)
	}

	answered := s.ledger.Count(s.current)
	s.log.Info("question closed",
		zap.Int("index", s.current),
		zap.Int("answered", answered),
		zap.Int("correct", len(credited)),
	)
	s.dispatcher.Broadcast(domain.EventResults, domain.ResultsBroadcast{
		Index:        s.current,
		OptionCounts: counts,
		Unanswered:   s.registry.Len() - answered,
		CorrectIndex: correct,
		Scores:       s.registry.Scores(),
	})

	if s.current == len(s.quiz.Questions)-1 {
		s.finishLocked()
	}
}

func (s *Session) finishLocked() {
	s.phase = domain.PhaseFinished
	standings := domain.FinalStandings{Standings: s.registry.Standings()}
	s.log.Info("session finished", zap.Int("players", s.registry.Len()))
	s.dispatcher.Broadcast(domain.EventFinalStandings, standings)
	if s.onFinished != nil {
		go s.onFinished(standings)
	}
}

func (s *Session) broadcastLobbyLocked() {
	roster := s.registry.Roster()
	entries := make([]domain.RosterEntry, 0, len(roster))
	for _, p := range roster {
		entries = append(entries, domain.RosterEntry{
			Name:      p.Name,
			Score:     p.Score,
			Connected: p.Connected,
		})
	}
	s.dispatcher.Broadcast(domain.EventLobbyUpdate, domain.LobbyUpdate{
		QuizName: s.quiz.Name,
		Roster:   entries,
	})
}

func (s *Session) questionBroadcastLocked(index int) domain.QuestionBroadcast {
	question := s.quiz.Questions[index]
	options := make([]string, 0, len(question.Options))
	for _, opt := range question.Options {
		options = append(options, opt.Text)
	}
	limit := s.answerWindow(question)
	return domain.QuestionBroadcast{
		Index:            index,
		Prompt:           question.Prompt,
		Options:          options,
		TimeLimitSeconds: int(limit / time.Second),
	}
}

func (s *Session) snapshotLocked(player domain.Player) domain.Snapshot {
	snapshot := domain.Snapshot{
		Phase:         s.phase,
		QuestionIndex: s.current,
		AnswerStatus:  player.AnswerStatus,
		Scores:        s.registry.Scores(),
	}
	if s.phase == domain.PhaseQuestionActive {
		q := s.questionBroadcastLocked(s.current)
		snapshot.Question = &q
	}
	return snapshot
}

func (s *Session) answerWindow(q domain.Question) time.Duration {
	if q.TimeLimitSeconds > 0 {
		return time.Duration(q.TimeLimitSeconds) * time.Second
	}
	return s.cfg.TimeLimit
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// IsRecoverable reports whether an error belongs to the command-level
// taxonomy that is reported to the originating connection without touching
// session state.
func IsRecoverable(err error) bool {
	return errors.Is(err, domain.ErrInvalidPhase) ||
		errors.Is(err, domain.ErrNameConflict) ||
		errors.Is(err, domain.ErrDuplicateAnswer) ||
		errors.Is(err, domain.ErrUnknownPlayer) ||
		errors.Is(err, domain.ErrMalformedMessage) ||
		errors.Is(err, domain.ErrSessionFull)
}
