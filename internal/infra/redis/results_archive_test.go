package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"quizhost/internal/domain"
)

func TestResultsArchiveStoresStandings(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	archive := NewResultsArchive(newClient(mr), time.Hour)
	finished := time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC)
	archive.clock = func() time.Time { return finished }

	standings := []domain.Standing{
		{Rank: 1, Name: "alice", Score: 2},
		{Rank: 2, Name: "bob", Score: 1},
	}
	if err := archive.ArchiveStandings(context.Background(), "quiz-1", standings); err != nil {
		t.Fatalf("archive: %v", err)
	}

	key := "quiz:quiz-1:results:" + "1773500940"
	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("get %s: %v", key, err)
	}
	var run archivedRun
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if run.QuizID != "quiz-1" || len(run.Standings) != 2 || run.Standings[0].Name != "alice" {
		t.Fatalf("unexpected archived run: %+v", run)
	}

	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Fatalf("ttl = %s", ttl)
	}
}
