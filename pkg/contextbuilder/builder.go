package contextbuilder

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ohadalab/sycora/pkg/search"
)

// CharsPerToken approximates the byte budget from the token budget.
const CharsPerToken = 4

// previewLength bounds the excerpt attached to each returned source.
const previewLength = 150

// Builder assembles the retrieval candidates into a bounded prompt context.
type Builder struct {
	maxTokens int
}

func New(maxTokens int) *Builder {
	return &Builder{maxTokens: maxTokens}
}

// Source is the client-facing view of a candidate.
type Source struct {
	ID       string         `json:"document_id"`
	Score    float64        `json:"relevance_score"`
	Preview  string         `json:"preview"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Summarize renders the candidates as a numbered context block bounded by
// maxTokens*CharsPerToken characters. Each document gets a scored header
// plus title and type lines from its metadata. When the budget would be
// exceeded, the first two documents may still contribute a sentence-bounded
// prefix; later documents are dropped.
func (b *Builder) Summarize(candidates []search.Candidate) string {
	budget := b.maxTokens * CharsPerToken

	var sb strings.Builder
	for i, c := range candidates {
		block := renderBlock(i+1, c)

		if sb.Len()+len(block) <= budget {
			sb.WriteString(block)
			continue
		}

		// The first couple of documents are worth truncating into the
		// remaining budget; anything later is dropped whole.
		if i < 2 {
			remaining := budget - sb.Len() - 50
			if remaining > 0 {
				sb.WriteString(truncateAtSentence(block, remaining))
			}
		}
		break
	}
	return strings.TrimRight(sb.String(), "\n")
}

func renderBlock(n int, c search.Candidate) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Document %d (score: %.2f):\n", n, c.RelevanceScore)
	if title, ok := c.Metadata["title"].(string); ok && title != "" {
		fmt.Fprintf(&sb, "Titre: %s\n", title)
	}
	if docType, ok := c.Metadata["document_type"].(string); ok && docType != "" {
		fmt.Fprintf(&sb, "Type: %s\n", docType)
	}
	sb.WriteString(c.Text)
	sb.WriteString("\n\n")
	return sb.String()
}

// truncateAtSentence cuts s to at most limit bytes, preferring the last
// sentence boundary in the kept prefix. Without a boundary the cut backs up
// to a rune start so accented text never yields invalid UTF-8.
func truncateAtSentence(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	prefix := s[:limit]
	if i := strings.LastIndexAny(prefix, ".!?"); i > 0 {
		return prefix[:i+1] + "\n"
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "\n"
}

// PrepareSources converts candidates into the client-facing source list,
// with relevance scores and short previews.
func PrepareSources(candidates []search.Candidate) []Source {
	sources := make([]Source, 0, len(candidates))
	for _, c := range candidates {
		sources = append(sources, Source{
			ID:       c.ID,
			Score:    c.RelevanceScore,
			Preview:  preview(c.Text),
			Metadata: c.Metadata,
		})
	}
	return sources
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}
