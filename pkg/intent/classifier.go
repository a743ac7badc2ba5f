package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/llms"
	"github.com/ohadalab/sycora/pkg/logger"
)

// Recognized intents.
const (
	IntentGreeting  = "greeting"
	IntentIdentity  = "identity"
	IntentSmalltalk = "smalltalk"
	IntentTechnical = "technical"
)

// Classification is the outcome of intent analysis.
type Classification struct {
	Intent             string  `json:"intent"`
	Confidence         float64 `json:"confidence"`
	Subcategory        string  `json:"subcategory,omitempty"`
	Explanation        string  `json:"explanation,omitempty"`
	NeedsKnowledgeBase bool    `json:"needs_knowledge_base"`

	// Heuristic marks Phase-1 classifications that never reached the LLM.
	Heuristic bool `json:"-"`
}

// Completer is the LLM dependency. Satisfied by llms.Chain.
type Completer interface {
	Complete(ctx context.Context, system, user string, opts llms.GenerateOptions) (string, error)
}

// Phase-1 patterns. A match short-circuits the LLM call entirely.
var (
	technicalReferencePattern = regexp.MustCompile(`(?i)(compte|article|section|chapitre|partie)\s+\d+`)

	technicalVocabulary = []string{
		"syscohada", "ohada", "acte uniforme", "bilan", "actif", "passif",
		"amortissement", "provision", "immobilisation", "trésorerie",
		"comptabilisation", "comptabiliser", "écriture comptable",
		"plan comptable", "créance", "exercice comptable",
	}

	greetingPattern = regexp.MustCompile(`(?i)^(bonjour|bonsoir|salut|coucou|hello|hey)\b[\s!.,]*$`)

	smalltalkPattern = regexp.MustCompile(`(?i)^(merci|au revoir|à bientôt|a bientot|bonne journée|bonne soirée|ça va|ca va)\b`)
)

// Classifier routes queries to direct-reply or retrieval. Phase 1 is a set
// of heuristics with no external call; Phase 2 asks the LLM for a
// structured classification.
type Classifier struct {
	llm     Completer
	persona config.PersonalityConfig
	log     *slog.Logger
}

func NewClassifier(llm Completer, persona config.PersonalityConfig) *Classifier {
	return &Classifier{
		llm:     llm,
		persona: persona,
		log:     logger.For("intent"),
	}
}

// Classify analyzes the query. Heuristic matches never call the LLM; an LLM
// failure or unparseable reply defaults to technical with retrieval enabled.
func (c *Classifier) Classify(ctx context.Context, query string) Classification {
	if cls, ok := c.classifyHeuristic(query); ok {
		return cls
	}
	return c.classifyLLM(ctx, query)
}

func (c *Classifier) classifyHeuristic(query string) (Classification, bool) {
	trimmed := strings.TrimSpace(query)
	lowered := strings.ToLower(trimmed)

	if technicalReferencePattern.MatchString(lowered) {
		return Classification{
			Intent:             IntentTechnical,
			Confidence:         0.95,
			NeedsKnowledgeBase: true,
			Heuristic:          true,
		}, true
	}

	for _, term := range technicalVocabulary {
		if strings.Contains(lowered, term) {
			return Classification{
				Intent:             IntentTechnical,
				Confidence:         0.95,
				NeedsKnowledgeBase: true,
				Heuristic:          true,
			}, true
		}
	}

	if greetingPattern.MatchString(trimmed) {
		return Classification{
			Intent:     IntentGreeting,
			Confidence: 0.95,
			Heuristic:  true,
		}, true
	}

	if smalltalkPattern.MatchString(trimmed) {
		return Classification{
			Intent:     IntentSmalltalk,
			Confidence: 0.95,
			Heuristic:  true,
		}, true
	}

	if len(strings.Fields(trimmed)) < 3 && !containsDigit(trimmed) {
		return Classification{
			Intent:     IntentSmalltalk,
			Confidence: 0.6,
			Heuristic:  true,
		}, true
	}

	return Classification{}, false
}

const classifySystemPrompt = `Tu es un assistant spécialisé dans l'analyse d'intention des questions utilisateur.

Ta tâche est de classifier les questions en différentes catégories :
- "greeting": Salutations comme "bonjour", "salut", etc.
- "identity": Questions sur l'identité ou les capacités de l'assistant.
- "smalltalk": Conversations générales comme remerciements, questions de courtoisie, au revoir.
- "technical": Questions techniques qui nécessitent des connaissances spécifiques.

Si c'est du "smalltalk", précise la sous-catégorie ("merci", "comment_ca_va", "au_revoir", etc.)

Réponds uniquement avec un objet JSON au format suivant:
{
    "intent": "greeting|identity|smalltalk|technical",
    "confidence": 0.XX,
    "subcategory": "string",
    "explanation": "string",
    "needs_knowledge_base": true|false
}`

func (c *Classifier) classifyLLM(ctx context.Context, query string) Classification {
	fallback := Classification{
		Intent:             IntentTechnical,
		NeedsKnowledgeBase: true,
	}

	response, err := c.llm.Complete(ctx,
		classifySystemPrompt,
		fmt.Sprintf("Question utilisateur: %q", query),
		llms.GenerateOptions{MaxTokens: 300, Temperature: config.Float64Ptr(0.1)},
	)
	if err != nil {
		c.log.Error("intent classification failed", "error", err)
		return fallback
	}

	// The LLM sometimes wraps the JSON in prose; isolate the outermost
	// object before parsing.
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		c.log.Error("no JSON object in classification response")
		return fallback
	}

	var cls Classification
	if err := json.Unmarshal([]byte(response[start:end+1]), &cls); err != nil {
		c.log.Error("failed to parse classification response", "error", err)
		return fallback
	}
	if cls.Intent == "" {
		c.log.Warn("classification response missing intent, defaulting to technical")
		return fallback
	}

	return cls
}

func containsDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
