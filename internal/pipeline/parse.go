package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/finsight/finsight/internal/news"
	"github.com/finsight/finsight/internal/validate"
)

// rawAnswer is the JSON shape requested from the model.
type rawAnswer struct {
	Summary          string   `json:"summary"`
	KeyInsights      []string `json:"key_insights"`
	CitedSources     []int    `json:"cited_sources"`
	MentionedTickers []string `json:"mentioned_tickers"`
	Sentiment        string   `json:"sentiment"`
	ConfidenceScore  float64  `json:"confidence_score"`
}

var validSentiments = map[string]struct{}{
	"positive": {},
	"neutral":  {},
	"negative": {},
}

// parseAnswer extracts the structured answer from model output.
// Cited source numbers are 1-based indexes into included; out-of-range
// numbers are dropped, so citations always refer to retrieved articles.
func parseAnswer(text string, included []news.Scored) (*Answer, error) {
	payload, err := extractJSON(text)
	if err != nil {
		return nil, fail(KindParse, err)
	}

	var raw rawAnswer
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, failf(KindParse, "decoding answer: %w", err)
	}
	if strings.TrimSpace(raw.Summary) == "" {
		return nil, failf(KindParse, "answer has no summary")
	}

	answer := &Answer{
		Summary:     strings.TrimSpace(raw.Summary),
		KeyInsights: raw.KeyInsights,
		Sentiment:   strings.ToLower(strings.TrimSpace(raw.Sentiment)),
		Confidence:  raw.ConfidenceScore,
	}

	// Anything outside the enum is treated as absent.
	if _, ok := validSentiments[answer.Sentiment]; !ok {
		answer.Sentiment = ""
	}
	answer.Confidence = min(max(answer.Confidence, 0), 1)

	seen := make(map[uuid.UUID]struct{})
	for _, n := range raw.CitedSources {
		if n < 1 || n > len(included) {
			continue
		}
		id := included[n-1].ID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		answer.CitedArticleIDs = append(answer.CitedArticleIDs, id)
	}

	for _, t := range raw.MentionedTickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if validate.Ticker(t) == nil {
			answer.MentionedTickers = append(answer.MentionedTickers, t)
		}
	}

	return answer, nil
}

// extractJSON pulls the JSON object out of model text, tolerating markdown
// code fences and prose around the payload.
func extractJSON(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("empty model response")
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object in model response")
	}
	return trimmed[start : end+1], nil
}

// fallbackAnswer degrades an unparseable response to plain text. The user
// still gets the model's words, minus the structured fields.
func fallbackAnswer(text string) *Answer {
	return &Answer{
		Summary:  strings.TrimSpace(text),
		Degraded: true,
	}
}
