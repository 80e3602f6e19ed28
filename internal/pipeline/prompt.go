package pipeline

import (
	"fmt"
	"strings"

	"github.com/finsight/finsight/internal/news"
)

// depthInstructions maps the analysis depth setting to response guidance.
var depthInstructions = map[string]string{
	"Basic":    "Keep the summary to 2-3 sentences and list at most 2 key insights.",
	"Standard": "Provide a concise summary and 3-5 key insights.",
	"Detailed": "Provide a thorough summary covering all relevant articles and 5-8 key insights, noting conflicting signals where they exist.",
}

const answerFormat = `Respond with only a JSON object in this exact format:
{
  "summary": "your answer to the question",
  "key_insights": ["insight 1", "insight 2"],
  "cited_sources": [1, 2],
  "mentioned_tickers": ["AAPL"],
  "sentiment": "positive, neutral or negative",
  "confidence_score": 0.0
}
cited_sources holds the numbers of the articles your answer draws on.
confidence_score is between 0 and 1.`

// buildPrompt assembles the model prompt from the question and retrieved
// articles, dropping the least similar articles first when the character
// budget would be exceeded. The returned slice holds the articles that
// made it into the prompt, in numbering order.
func buildPrompt(question, depth string, docs []news.Scored, budget int) (string, []news.Scored) {
	depthNote, ok := depthInstructions[depth]
	if !ok {
		depthNote = depthInstructions["Standard"]
	}

	header := "You are a financial research assistant. Answer the question using only the numbered articles below. " +
		depthNote + "\n\nQuestion: " + question + "\n\nArticles:\n"
	footer := "\n" + answerFormat

	fixed := len(header) + len(footer)
	var (
		sb       strings.Builder
		included []news.Scored
	)
	sb.WriteString(header)

	used := fixed
	for _, doc := range docs {
		entry := formatArticle(len(included)+1, doc)
		if used+len(entry) > budget {
			// docs arrive ordered by similarity, so everything after
			// this one is a worse fit.
			break
		}
		sb.WriteString(entry)
		used += len(entry)
		included = append(included, doc)
	}

	sb.WriteString(footer)
	return sb.String(), included
}

// formatArticle renders one numbered context entry.
func formatArticle(n int, doc news.Scored) string {
	ticker := "N/A"
	if len(doc.Tickers) > 0 {
		ticker = strings.Join(doc.Tickers, ", ")
	}
	source := doc.Source
	if source == "" {
		source = "N/A"
	}
	entry := fmt.Sprintf("%d. %s\n   Summary: %s\n   Ticker: %s\n   Source: %s\n   Published: %s\n",
		n, doc.Headline, doc.Summary, ticker, source, doc.PublishedAt.Format("2006-01-02"))
	return entry
}

// buildNoContextPrompt is used when retrieval found nothing; the model
// must say so instead of inventing news.
func buildNoContextPrompt(question string) string {
	return "You are a financial research assistant. No relevant news articles were found for the question below. " +
		"Answer from general financial knowledge, state clearly that no recent news was available, and do not invent specific news events.\n\n" +
		"Question: " + question + "\n\n" + answerFormat
}
