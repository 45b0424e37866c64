package app

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"quizhost/internal/domain"
)

// Registry tracks every participant registered during a session, in
// registration order. Identities are never removed mid-session; a dropped
// connection only flips the Connected flag so the player can reattach
// without losing their score.
//
// Registry does no locking of its own: it is owned by the Session and only
// touched on the session's serialized mutation path.
type Registry struct {
	players map[string]*domain.Player
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*domain.Player)}
}

// Register creates a new player with a fresh identifier. The display name
// must be unique within the session.
func (r *Registry) Register(name string, now time.Time) (domain.Player, error) {
	for _, id := range r.order {
		if r.players[id].Name == name {
			return domain.Player{}, domain.ErrNameConflict
		}
	}

	p := &domain.Player{
		ID:           uuid.New().String(),
		Name:         name,
		Connected:    true,
		AnswerStatus: domain.AnswerPending,
		JoinedAt:     now,
	}
	r.players[p.ID] = p
	r.order = append(r.order, p.ID)
	return *p, nil
}

// Get returns a snapshot of the player with the given id.
func (r *Registry) Get(id string) (domain.Player, bool) {
	p, ok := r.players[id]
	if !ok {
		return domain.Player{}, false
	}
	return *p, true
}

// MarkDisconnected invalidates the player's connection reference while
// keeping identity and score intact.
func (r *Registry) MarkDisconnected(id string) {
	if p, ok := r.players[id]; ok {
		p.Connected = false
	}
}

// Reattach restores the connection flag for a returning player.
func (r *Registry) Reattach(id string) (domain.Player, error) {
	p, ok := r.players[id]
	if !ok {
		return domain.Player{}, domain.ErrUnknownPlayer
	}
	p.Connected = true
	return *p, nil
}

// AddScore credits points to a player. Scores only ever grow.
func (r *Registry) AddScore(id string, points int) {
	if p, ok := r.players[id]; ok && points > 0 {
		p.Score += points
	}
}

// SetAnswerStatus updates the player's standing on the current question.
func (r *Registry) SetAnswerStatus(id string, status domain.AnswerStatus) {
	if p, ok := r.players[id]; ok {
		p.AnswerStatus = status
	}
}

// ResetAnswerStatus marks every player unanswered, called when a new
// question opens.
func (r *Registry) ResetAnswerStatus() {
	for _, p := range r.players {
		p.AnswerStatus = domain.AnswerPending
	}
}

// TimeOutPending marks every player that never answered the current
// question as timed out and returns their ids.
func (r *Registry) TimeOutPending() []string {
	var timedOut []string
	for _, id := range r.order {
		p := r.players[id]
		if p.AnswerStatus == domain.AnswerPending {
			p.AnswerStatus = domain.AnswerTimedOut
			timedOut = append(timedOut, id)
		}
	}
	return timedOut
}

// Len returns the number of registered players.
func (r *Registry) Len() int {
	return len(r.order)
}

// ConnectedCount returns how many registered players currently hold a
// valid connection.
func (r *Registry) ConnectedCount() int {
	n := 0
	for _, p := range r.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// AllConnectedAnswered reports whether every currently-connected player has
// submitted an answer for the current question. False when nobody is
// connected, so an emptied room never force-closes a question.
func (r *Registry) AllConnectedAnswered() bool {
	connected := 0
	for _, p := range r.players {
		if !p.Connected {
			continue
		}
		connected++
		if p.AnswerStatus != domain.AnswerSubmitted {
			return false
		}
	}
	return connected > 0
}

// Roster returns player snapshots in registration order.
func (r *Registry) Roster() []domain.Player {
	roster := make([]domain.Player, 0, len(r.order))
	for _, id := range r.order {
		roster = append(roster, *r.players[id])
	}
	return roster
}

// Scores returns (name, score) pairs in registration order.
func (r *Registry) Scores() []domain.PlayerScore {
	scores := make([]domain.PlayerScore, 0, len(r.order))
	for _, id := range r.order {
		p := r.players[id]
		scores = append(scores, domain.PlayerScore{Name: p.Name, Score: p.Score})
	}
	return scores
}

// Standings ranks players by descending score; ties go to whoever
// registered first.
func (r *Registry) Standings() []domain.Standing {
	ranked := make([]*domain.Player, 0, len(r.order))
	joinedRank := make(map[string]int, len(r.order))
	for i, id := range r.order {
		ranked = append(ranked, r.players[id])
		joinedRank[id] = i
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return joinedRank[ranked[i].ID] < joinedRank[ranked[j].ID]
	})

	standings := make([]domain.Standing, 0, len(ranked))
	for i, p := range ranked {
		standings = append(standings, domain.Standing{Rank: i + 1, Name: p.Name, Score: p.Score})
	}
	return standings
}
