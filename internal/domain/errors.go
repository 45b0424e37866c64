package domain

import "errors"

var (
	// ErrInvalidPhase is returned when a command is illegal in the session's current phase.
	ErrInvalidPhase = errors.New("command not allowed in current phase")
	// ErrNameConflict is returned when a display name is already taken in the lobby.
	ErrNameConflict = errors.New("display name already taken")
	// ErrDuplicateAnswer is returned when a player already answered the current question.
	ErrDuplicateAnswer = errors.New("answer already recorded for this question")
	// ErrUnknownPlayer is returned on a reconnect attempt with an unrecognized identifier.
	ErrUnknownPlayer = errors.New("unknown player id")
	// ErrAdminLost indicates the admin connection dropped; the session is unrecoverable.
	ErrAdminLost = errors.New("admin connection lost")
	// ErrMalformedMessage is returned when a wire message does not match any known command shape.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrSessionFull is returned when the configured player limit is reached.
	ErrSessionFull = errors.New("session is full")
	// ErrSessionExists is returned when an admin connects while a session is already live.
	ErrSessionExists = errors.New("a session is already running")
	// ErrNoSession is returned when a player connects before the admin has opened a session.
	ErrNoSession = errors.New("no session is running")
	// ErrQuizNotFound indicates the quiz definition could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrEmptyQuiz indicates a quiz definition with no questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
)
