package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizhost/internal/app"
	"quizhost/internal/domain"
)

const writeWait = 10 * time.Second

// WSHandler exposes the admin and player WebSocket endpoints and decodes
// loosely-typed wire messages into engine commands. Everything it forwards
// goes through the session's serialized command methods; the handler
// itself holds no quiz state.
type WSHandler struct {
	host     *app.Host
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(host *app.Host, log *zap.Logger) *WSHandler {
	return &WSHandler{
		host: host,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	Name string `json:"name"`
}

type answerPayload struct {
	// Pointer so a missing field is distinguishable from option 0.
	OptionIndex *int `json:"optionIndex"`
}

type reply struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ackPayload struct {
	Cmd      string `json:"cmd"`
	PlayerID string `json:"playerId,omitempty"`
	QuizName string `json:"quizName,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wsConn adapts a gorilla connection to the dispatcher's Sink. A single
// mutex serializes event writes (from the dispatcher pump) against command
// replies (from the read loop); gorilla connections allow one writer at a
// time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(ev domain.Event) error {
	return c.writeJSON(ev)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) reply(v any) {
	_ = c.writeJSON(v)
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// ServeAdmin upgrades the single admin connection. Connecting opens the
// session; the connection dropping before the quiz finished aborts it for
// everyone.
func (h *WSHandler) ServeAdmin(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("admin upgrade failed", zap.Error(err))
		return
	}
	sink := &wsConn{conn: conn}

	session, err := h.host.OpenSession(r.Context(), quizID, sink)
	if err != nil {
		sink.reply(errorReply(err))
		_ = conn.Close()
		return
	}
	sink.reply(reply{Type: "ack", Payload: ackPayload{Cmd: "open", QuizName: session.Quiz().Name}})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		var cmdErr error
		switch inbound.Type {
		case "start", "next":
			cmdErr = session.StartNextQuestion()
		case "close_question":
			cmdErr = session.CloseQuestion()
		case "finish":
			cmdErr = session.Finish()
		default:
			cmdErr = domain.ErrMalformedMessage
		}

		if cmdErr != nil {
			sink.reply(errorReply(cmdErr))
			if !app.IsRecoverable(cmdErr) {
				break
			}
			continue
		}
		sink.reply(reply{Type: "ack", Payload: ackPayload{Cmd: inbound.Type}})
	}

	if session.Phase() == domain.PhaseFinished {
		h.host.Release(session)
		_ = conn.Close()
		return
	}
	h.log.Warn("admin connection lost, aborting session", zap.String("quiz_id", quizID))
	h.host.AdminLost(session)
}

// ServePlayer upgrades a player connection. A name query parameter joins
// immediately; a playerId parameter reattaches a returning player instead.
// A connection without either must send a join message before anything
// else.
func (h *WSHandler) ServePlayer(w http.ResponseWriter, r *http.Request) {
	session, ok := h.host.Current()
	if !ok {
		http.Error(w, domain.ErrNoSession.Error(), http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("player upgrade failed", zap.Error(err))
		return
	}
	sink := &wsConn{conn: conn}

	var playerID string
	if id := r.URL.Query().Get("playerId"); id != "" {
		if _, err := session.Reattach(id, r.URL.Query().Get("name"), sink); err != nil {
			sink.reply(errorReply(err))
			_ = conn.Close()
			return
		}
		playerID = id
		sink.reply(reply{Type: "ack", Payload: ackPayload{Cmd: "reattach", PlayerID: playerID}})
	} else if name := r.URL.Query().Get("name"); name != "" {
		player, err := session.Join(name, sink)
		if err != nil {
			sink.reply(errorReply(err))
			_ = conn.Close()
			return
		}
		playerID = player.ID
		sink.reply(reply{Type: "ack", Payload: ackPayload{Cmd: "join", PlayerID: playerID}})
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}

		switch inbound.Type {
		case "join":
			if playerID != "" {
				sink.reply(errorReply(domain.ErrInvalidPhase))
				continue
			}
			var payload joinPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Name == "" {
				sink.reply(errorReply(domain.ErrMalformedMessage))
				continue
			}
			player, err := session.Join(payload.Name, sink)
			if err != nil {
				sink.reply(errorReply(err))
				continue
			}
			playerID = player.ID
			sink.reply(reply{Type: "ack", Payload: ackPayload{Cmd: "join", PlayerID: playerID}})

		case "answer":
			if playerID == "" {
				sink.reply(errorReply(domain.ErrUnknownPlayer))
				continue
			}
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.OptionIndex == nil {
				sink.reply(errorReply(domain.ErrMalformedMessage))
				continue
			}
			if err := session.SubmitAnswer(playerID, *payload.OptionIndex); err != nil {
				sink.reply(errorReply(err))
				continue
			}
			sink.reply(reply{Type: "ack", Payload: ackPayload{Cmd: "answer"}})

		default:
			sink.reply(errorReply(domain.ErrMalformedMessage))
		}
	}

	if playerID != "" {
		session.DisconnectPlayer(playerID, sink)
	}
	_ = conn.Close()
}

func errorReply(err error) reply {
	return reply{Type: "error", Payload: errorPayload{Code: errorCode(err), Message: err.Error()}}
}

// errorCode maps engine sentinels onto stable wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidPhase):
		return "invalid_phase"
	case errors.Is(err, domain.ErrNameConflict):
		return "name_conflict"
	case errors.Is(err, domain.ErrDuplicateAnswer):
		return "duplicate_answer"
	case errors.Is(err, domain.ErrUnknownPlayer):
		return "unknown_player"
	case errors.Is(err, domain.ErrMalformedMessage):
		return "malformed_message"
	case errors.Is(err, domain.ErrSessionFull):
		return "session_full"
	case errors.Is(err, domain.ErrSessionExists):
		return "session_exists"
	case errors.Is(err, domain.ErrNoSession):
		return "no_session"
	case errors.Is(err, domain.ErrQuizNotFound):
		return "quiz_not_found"
	default:
		return "internal"
	}
}
