package file

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"quizhost/internal/domain"
)

// QuizLoader reads quiz definitions from a YAML document on disk. The file
// holds one or more quizzes under a top-level `quizzes` key; it is parsed
// once and the definitions are immutable afterwards.
type QuizLoader struct {
	path string

	once    sync.Once
	quizzes map[string]domain.Quiz
	loadErr error
}

type quizFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

func NewQuizLoader(path string) *QuizLoader {
	return &QuizLoader{path: path}
}

func (l *QuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	l.once.Do(l.parse)
	if l.loadErr != nil {
		return domain.Quiz{}, l.loadErr
	}
	quiz, ok := l.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (l *QuizLoader) parse() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		l.loadErr = fmt.Errorf("read quiz file: %w", err)
		return
	}

	var doc quizFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		l.loadErr = fmt.Errorf("parse quiz file %s: %w", l.path, err)
		return
	}

	l.quizzes = make(map[string]domain.Quiz, len(doc.Quizzes))
	for _, quiz := range doc.Quizzes {
		if err := quiz.Validate(); err != nil {
			l.loadErr = fmt.Errorf("quiz file %s: %w", l.path, err)
			return
		}
		l.quizzes[quiz.ID] = quiz
	}
}
