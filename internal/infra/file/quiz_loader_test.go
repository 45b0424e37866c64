package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"quizhost/internal/domain"
)

const sampleYAML = `
quizzes:
  - id: quiz-1
    name: General Knowledge
    questions:
      - prompt: "What is 2 + 2?"
        time_limit_seconds: 20
        options:
          - text: "3"
          - text: "4"
            correct: true
          - text: "5"
      - prompt: "Largest planet?"
        options:
          - text: "Jupiter"
            correct: true
          - text: "Mars"
`

func writeQuizFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quiz.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write quiz file: %v", err)
	}
	return path
}

func TestLoadQuizFromYAML(t *testing.T) {
	loader := NewQuizLoader(writeQuizFile(t, sampleYAML))

	quiz, err := loader.LoadQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if quiz.Name != "General Knowledge" || len(quiz.Questions) != 2 {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
	if quiz.Questions[0].TimeLimitSeconds != 20 {
		t.Fatalf("time limit not parsed: %d", quiz.Questions[0].TimeLimitSeconds)
	}
	if quiz.Questions[0].CorrectIndex() != 1 {
		t.Fatalf("correct index = %d", quiz.Questions[0].CorrectIndex())
	}
}

func TestLoadQuizUnknownID(t *testing.T) {
	loader := NewQuizLoader(writeQuizFile(t, sampleYAML))

	if _, err := loader.LoadQuiz(context.Background(), "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestLoadQuizRejectsInvalidDefinition(t *testing.T) {
	loader := NewQuizLoader(writeQuizFile(t, `
quizzes:
  - id: broken
    name: Broken
    questions:
      - prompt: "No correct option"
        options:
          - text: "a"
          - text: "b"
`))

	if _, err := loader.LoadQuiz(context.Background(), "broken"); err == nil {
		t.Fatalf("expected validation error")
	}
}
