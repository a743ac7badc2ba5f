package reformulate

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/llms"
	"github.com/ohadalab/sycora/pkg/logger"
)

// Completer is the LLM dependency. Satisfied by llms.Chain.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts llms.GenerateOptions) (string, error)
}

// Queries that are already specific skip reformulation entirely.
var (
	numberedReferencePattern = regexp.MustCompile(`(?i)(compte|article|section|chapitre|partie)\s+\d+`)

	directQuestionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(quel|quelle|quels|quelles)\s+(est|sont)`),
		regexp.MustCompile(`(?i)^comment\s+(enregistrer|comptabiliser|faire)`),
		regexp.MustCompile(`(?i)^où\s+(enregistrer|comptabiliser|trouver)`),
	}

	technicalTerms = []string{
		"syscohada", "ohada", "bilan", "actif", "passif", "amortissement",
		"provision", "charge", "produit", "immobilisation", "stock",
		"trésorerie", "créance", "dette", "capital", "résultat",
	}
)

// Reformulator rewrites vague questions into precise accounting queries
// before retrieval. Specific queries pass through untouched.
type Reformulator struct {
	llm Completer
	log *slog.Logger
}

func New(llm Completer) *Reformulator {
	return &Reformulator{
		llm: llm,
		log: logger.For("reformulate"),
	}
}

// ShouldReformulate reports whether the query is vague enough to benefit
// from a rewrite. Short queries, numbered references, technical vocabulary
// and directly phrased questions are left alone.
func ShouldReformulate(query string) bool {
	trimmed := strings.TrimSpace(query)
	lowered := strings.ToLower(trimmed)
	words := strings.Fields(lowered)

	if len(words) <= 10 {
		return false
	}
	if numberedReferencePattern.MatchString(lowered) {
		return false
	}
	for _, term := range technicalTerms {
		if strings.Contains(lowered, term) {
			return false
		}
	}
	for _, pattern := range directQuestionPatterns {
		if pattern.MatchString(lowered) {
			return false
		}
	}
	return true
}

const reformulateSystemPrompt = `Tu es un expert en comptabilité OHADA/SYSCOHADA.
Reformule la question de l'utilisateur en une requête de recherche précise et
technique, en utilisant le vocabulaire comptable approprié. Réponds uniquement
avec la question reformulée, sans commentaire.`

// Reformulate rewrites the query when the guard allows it. Any LLM failure
// or empty rewrite falls back to the original query.
func (r *Reformulator) Reformulate(ctx context.Context, query string) string {
	if !ShouldReformulate(query) {
		return query
	}

	rewritten, err := r.llm.Complete(ctx,
		reformulateSystemPrompt,
		query,
		llms.GenerateOptions{MaxTokens: 100, Temperature: config.Float64Ptr(0.3)},
	)
	if err != nil {
		r.log.Warn("reformulation failed, keeping original query", "error", err)
		return query
	}

	rewritten = strings.TrimSpace(strings.Trim(strings.TrimSpace(rewritten), `"`))
	if rewritten == "" {
		return query
	}

	r.log.Debug("query reformulated", "original", query, "rewritten", rewritten)
	return rewritten
}
