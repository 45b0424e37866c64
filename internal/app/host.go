package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"quizhost/internal/domain"
)

// QuizRepository loads quiz definitions (from a file, cache, or backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultsArchiver stores final standings after a session finishes. Archival
// is best effort; a failure never affects the session itself.
type ResultsArchiver interface {
	ArchiveStandings(ctx context.Context, quizID string, standings []domain.Standing) error
}

// Host owns the single live session of this instance. Exactly one session
// and exactly one admin exist at a time; the session is created when the
// admin connects and destroyed when the quiz ends or the admin drops.
type Host struct {
	quizzes QuizRepository
	archive ResultsArchiver
	cfg     SessionConfig
	log     *zap.Logger

	mu      sync.Mutex
	session *Session
}

func NewHost(quizzes QuizRepository, archive ResultsArchiver, cfg SessionConfig, log *zap.Logger) *Host {
	return &Host{
		quizzes: quizzes,
		archive: archive,
		cfg:     cfg,
		log:     log,
	}
}

// OpenSession loads the quiz and starts a fresh session with the given
// admin connection attached. It fails while another session is still live.
func (h *Host) OpenSession(ctx context.Context, quizID string, admin Sink) (*Session, error) {
	quiz, err := h.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := quiz.Validate(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session != nil && !h.session.terminal() {
		return nil, domain.ErrSessionExists
	}

	session := NewSession(quiz, h.cfg, h.log)
	if h.archive != nil {
		session.onFinished = func(standings domain.FinalStandings) {
			h.archiveStandings(quiz.ID, standings)
		}
	}
	session.Dispatcher().AttachAdmin(admin)
	h.session = session
	h.log.Info("session opened", zap.String("quiz_id", quiz.ID), zap.String("quiz_name", quiz.Name))
	return session, nil
}

// Current returns the live session, if any.
func (h *Host) Current() (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil || h.session.terminal() {
		return nil, false
	}
	return h.session, true
}

// AdminLost tears the session down after the admin connection dropped.
// There is exactly one admin and no replacement election, so this is fatal
// to the whole session. An already-finished session is simply released.
func (h *Host) AdminLost(session *Session) {
	h.mu.Lock()
	if h.session != session {
		h.mu.Unlock()
		return
	}
	h.session = nil
	h.mu.Unlock()

	session.Abort(domain.ErrAdminLost.Error())
}

// Release drops the bookkeeping for a session that ended normally so a new
// one can be opened.
func (h *Host) Release(session *Session) {
	h.mu.Lock()
	if h.session == session {
		h.session = nil
	}
	h.mu.Unlock()
}

// Shutdown aborts the live session, used on process exit.
func (h *Host) Shutdown(reason string) {
	h.mu.Lock()
	session := h.session
	h.session = nil
	h.mu.Unlock()

	if session != nil {
		session.Abort(reason)
	}
}

func (h *Host) archiveStandings(quizID string, standings domain.FinalStandings) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.archive.ArchiveStandings(ctx, quizID, standings.Standings); err != nil {
		h.log.Warn("failed to archive final standings",
			zap.String("quiz_id", quizID),
			zap.Error(err),
		)
	}
}
