package route

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wevently/triage/internal/kb"
	"github.com/wevently/triage/internal/llm"
)

// Selection sources, recorded for observability.
const (
	SelectionLLM      = "llm"              // model picked an in-range option
	SelectionSingle   = "single-candidate" // only one candidate, model skipped
	SelectionFallback = "fallback"         // model output unusable, no candidate chosen
	SelectionNone     = "none"             // no candidates at all
)

// Selection is the outcome of choosing among knowledge-base candidates.
// Index is 1-based; 0 when no candidate was chosen.
type Selection struct {
	Index         int
	Candidate     *kb.Candidate
	Justification string
	Source        string
}

// Accepts both the Spanish and English spellings the models emit.
var optionRE = regexp.MustCompile(`(?i)(?:opci[oó]n|option)\s*(\d+)`)

const noCandidatesJustification = "No hay soluciones candidatas en la base de conocimiento."

// Disambiguate picks the best candidate for the message. With zero
// candidates it returns an empty selection; with exactly one it returns it
// without consulting the model. Otherwise the model is asked to pick an
// option; any unusable answer yields an empty fallback selection with the
// raw model output preserved in the justification, never a silent guess.
func Disambiguate(ctx context.Context, provider llm.Provider, message, category, emotion string, candidates []kb.Candidate) Selection {
	if len(candidates) == 0 {
		return Selection{Source: SelectionNone, Justification: noCandidatesJustification}
	}
	if len(candidates) == 1 {
		return Selection{
			Index:         1,
			Candidate:     &candidates[0],
			Justification: "Única solución candidata.",
			Source:        SelectionSingle,
		}
	}

	prompt := selectionPrompt(message, category, emotion, candidates)
	answer, err := provider.Complete(ctx, prompt, llm.CompletionOpts{Temperature: 0})
	if err != nil {
		return fallbackSelection(fmt.Sprintf("Fallo del selector LLM (%v).", err))
	}

	m := optionRE.FindStringSubmatch(answer)
	if m == nil {
		return fallbackSelection("No se pudo determinar opción de LLM. Justificación: " + answer)
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil || idx < 1 || idx > len(candidates) {
		return fallbackSelection("Índice elegido fuera de rango por el LLM. Justificación: " + answer)
	}

	return Selection{
		Index:         idx,
		Candidate:     &candidates[idx-1],
		Justification: answer,
		Source:        SelectionLLM,
	}
}

func fallbackSelection(justification string) Selection {
	return Selection{Justification: justification, Source: SelectionFallback}
}

func selectionPrompt(message, category, emotion string, candidates []kb.Candidate) string {
	var b strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&b, "Opción %d: Tipo=%s, Solución=%s, Confianza=%.2f, Keywords=%s\n",
			i+1, c.ProblemType, c.Solution, c.StoredConfidence, strings.Join(c.MatchedKeywords, ", "))
	}

	return fmt.Sprintf(
		"Como capa intermedia de un proceso de decisión para ofrecer la mejor solución al problema/consulta del usuario, debes elegir cual es la mejor solución de las ofrecidas para el problema que plantea el usuario. No modifiques la solución ni el tipo de problema. "+
			"Mensaje del usuario: '%s'\n"+
			"Categoría ML: %s\n"+
			"Emoción detectada: %s\n\n"+
			"Soluciones candidatas:\n%s\n"+
			"Evalúa todas las opciones y elige la más relevante para el mensaje y emoción del usuario. "+
			"Elige SOLO la opción más relevante para el mensaje y emoción del usuario. "+
			"Responde exactamente con 'Opción X:' seguido de una justificación breve. "+
			"Si varias opciones son similares, desempata por cantidad de keywords y confianza.",
		message, category, emotion, b.String())
}
