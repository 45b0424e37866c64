package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quizhost/internal/domain"
)

// ResultsArchive stores the final standings of finished sessions so
// operators can fetch them after the room empties:
//
//	SET quiz:{quizID}:results:{unix} {json} EX ttl
//
// Each finished run gets its own timestamped key; live session state is
// never persisted here.
type ResultsArchive struct {
	client *redis.Client
	ttl    time.Duration
	clock  func() time.Time
}

func NewResultsArchive(client *redis.Client, ttl time.Duration) *ResultsArchive {
	return &ResultsArchive{
		client: client,
		ttl:    ttl,
		clock:  time.Now,
	}
}

type archivedRun struct {
	QuizID     string            `json:"quizId"`
	FinishedAt time.Time         `json:"finishedAt"`
	Standings  []domain.Standing `json:"standings"`
}

func (a *ResultsArchive) ArchiveStandings(ctx context.Context, quizID string, standings []domain.Standing) error {
	finishedAt := a.clock()
	data, err := json.Marshal(archivedRun{
		QuizID:     quizID,
		FinishedAt: finishedAt,
		Standings:  standings,
	})
	if err != nil {
		return fmt.Errorf("marshal standings: %w", err)
	}

	key := fmt.Sprintf("quiz:%s:results:%d", quizID, finishedAt.Unix())
	if err := a.client.Set(ctx, key, data, a.ttl).Err(); err != nil {
		return fmt.Errorf("archive standings: %w", err)
	}
	return nil
}
