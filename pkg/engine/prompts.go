package engine

import "fmt"

// Context shorter than this is treated as insufficient on its own; the
// prompt then allows clearly-flagged general knowledge to fill the gaps.
const generalKnowledgeThreshold = 500

const generationSystemPrompt = `Tu es un expert-comptable spécialisé dans le droit OHADA et le plan comptable SYSCOHADA.
Tu réponds en français, de manière structurée et précise, en citant les références
(articles, chapitres, comptes) lorsqu'elles figurent dans les extraits fournis.`

const answerPromptTemplate = `Réponds à la question suivante en t'appuyant sur les extraits de la base de connaissances OHADA.

Question: %s

Extraits:
%s

Instructions:
- Appuie-toi en priorité sur les extraits fournis.
- Cite les références précises (article, chapitre, compte) quand elles apparaissent.
- Structure ta réponse en paragraphes courts.
- Si les extraits ne permettent pas de répondre complètement, indique-le clairement.`

const answerPromptGeneralTemplate = `Réponds à la question suivante. Les extraits disponibles dans la base de
connaissances OHADA sont limités : appuie-toi dessus quand c'est possible, et
complète avec tes connaissances générales du référentiel OHADA/SYSCOHADA en
signalant explicitement ce qui ne provient pas des extraits.

Question: %s

Extraits:
%s`

const fallbackPromptTemplate = `Question: %s

Contexte:
%s

Réponds à la question en te basant sur le contexte ci-dessus.`

// User-facing failure messages.
const (
	generationFailureMessage = "Désolé, je n'ai pas pu générer une réponse. Veuillez réessayer ultérieurement."
	noResultsMessage         = "Désolé, je n'ai pas pu trouver d'informations sur cette question dans ma base de connaissances OHADA."
)

func answerPrompt(query, contextText string) string {
	if len(contextText) < generalKnowledgeThreshold {
		return fmt.Sprintf(answerPromptGeneralTemplate, query, contextText)
	}
	return fmt.Sprintf(answerPromptTemplate, query, contextText)
}
