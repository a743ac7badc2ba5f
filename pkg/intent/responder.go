package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ohadalab/sycora/pkg/config"
	"github.com/ohadalab/sycora/pkg/llms"
)

// Canned fallbacks used when the LLM cannot produce a direct reply.
const (
	fallbackGreeting  = "Bonjour ! Je suis votre assistant spécialisé en comptabilité OHADA et SYSCOHADA. Comment puis-je vous aider ?"
	fallbackIdentity  = "Je suis un assistant spécialisé en comptabilité et normes SYSCOHADA dans la zone OHADA. Posez-moi vos questions techniques !"
	fallbackSmalltalk = "Avec plaisir ! N'hésitez pas si vous avez une question sur la comptabilité OHADA."
)

func (c *Classifier) personaPrompt() string {
	p := c.persona
	return fmt.Sprintf(
		"Tu es %s, un assistant spécialisé en %s dans la %s. "+
			"Tu réponds en %s, sur un ton %s. "+
			"Tu restes bref et naturel dans les échanges de courtoisie.",
		p.Name, p.Expertise, p.Region, languageName(p.Language), p.Tone,
	)
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "fr", "français", "francais":
		return "français"
	case "en", "english":
		return "anglais"
	default:
		return code
	}
}

// DirectReply synthesizes a persona-shaped answer for conversational
// intents. It returns ok=false when the query needs retrieval instead.
func (c *Classifier) DirectReply(ctx context.Context, query string, cls Classification) (string, bool) {
	if cls.NeedsKnowledgeBase || cls.Intent == IntentTechnical {
		return "", false
	}

	var instruction, fallback string
	switch cls.Intent {
	case IntentGreeting:
		instruction = "L'utilisateur te salue. Réponds chaleureusement et propose ton aide."
		fallback = fallbackGreeting
	case IntentIdentity:
		instruction = "L'utilisateur demande qui tu es ou ce que tu sais faire. Présente-toi et tes capacités."
		fallback = fallbackIdentity
	case IntentSmalltalk:
		instruction = "L'utilisateur fait la conversation"
		if cls.Subcategory != "" {
			instruction += fmt.Sprintf(" (%s)", cls.Subcategory)
		}
		instruction += ". Réponds brièvement et avec courtoisie."
		fallback = fallbackSmalltalk
	default:
		return "", false
	}

	reply, err := c.llm.Complete(ctx,
		c.personaPrompt(),
		fmt.Sprintf("%s\n\nMessage de l'utilisateur: %q", instruction, query),
		llms.GenerateOptions{MaxTokens: 600, Temperature: config.Float64Ptr(0.7)},
	)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			c.log.Warn("direct reply generation failed, using canned response", "error", err)
		}
		return fallback, true
	}
	return strings.TrimSpace(reply), true
}
