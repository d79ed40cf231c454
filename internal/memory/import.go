package memory

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"autofill-service/internal/match"
	"autofill-service/internal/metrics"
	"autofill-service/internal/store"
)

// ImportGlobalCSV loads global patterns from a CSV file with columns
// question,intent[,canonical_key]. It returns the number of rows upserted.
func (s *Service) ImportGlobalCSV(ctx context.Context, path string) (int, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, fmt.Errorf("global patterns path is empty")
	}
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open global patterns file: %w", err)
	}
	defer file.Close()
	return s.ImportGlobal(ctx, file)
}

// ImportGlobal reads global pattern rows from r. Header and blank rows are
// skipped and protected intents are rejected.
func (s *Service) ImportGlobal(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	imported := 0
	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read global patterns row: %w", err)
		}
		line++
		if len(row) < 2 {
			continue
		}

		question := match.NormalizeQuestion(row[0])
		intentKey := strings.TrimSpace(row[1])
		if question == "" || intentKey == "" {
			continue
		}
		if line == 1 && question == "question" {
			continue
		}
		if s.isProtected(intentKey) {
			logrus.WithFields(logrus.Fields{
				"line":   line,
				"intent": intentKey,
			}).Warn("skipping protected intent in global import")
			continue
		}

		var canonicalKey string
		if len(row) > 2 {
			canonicalKey = strings.TrimSpace(row[2])
		}
		pattern := &store.GlobalPattern{
			ID:              globalID(question),
			QuestionPattern: question,
			Intent:          intentKey,
			CanonicalKey:    canonicalKey,
			Confidence:      1,
			Source:          "import",
		}
		pattern.SetAnswerMappings(nil)
		if err := s.db.UpsertGlobalPattern(pattern); err != nil {
			return imported, fmt.Errorf("import line %d: %w", line, err)
		}
		imported++
	}

	if imported > 0 {
		metrics.LearnedPatterns.WithLabelValues(string(ScopeGlobal)).Add(float64(imported))
		s.resetCache(ctx)
		s.emit(Event{Type: EventImported, Scope: ScopeGlobal, Count: imported})
	}
	return imported, nil
}
