// Package compose renders the final user-facing reply. It maps user roles to
// voice profiles, detected emotions to response tones, and delegates the
// actual text generation to an LLM provider.
package compose

import (
	"context"
	"fmt"
	"strings"

	"github.com/wevently/triage/internal/llm"
	"github.com/wevently/triage/internal/signal"
)

// Replies used when the pipeline short-circuits or finds nothing actionable.
const (
	FallbackReply  = "Lo siento, no puedo ayudar con ese tipo de consulta."
	SupportContact = "weventlyempresa@gmail.com"
)

// Trust labels appended to the reply depending on the fused confidence.
const (
	TrustThreshold = 0.7

	trustedNote   = "Respuesta recomendada por nuestro sistema."
	untrustedNote = "Respuesta tomada de la base de conocimiento (confianza baja, verificar manualmente)."
	noMatchNote   = "No se encontró solución automática, te derivaremos a soporte. (" + SupportContact + ")"
)

// RoleProfile describes how replies for a user role should sound.
type RoleProfile struct {
	Greeting string
	Tone     string
	Extra    string
}

// DefaultRole is used when an unknown role name comes in.
const DefaultRole = "Prestador"

var roleProfiles = map[string]RoleProfile{
	"Organizador": {
		Greeting: "¡Hola estimado organizador! ",
		Tone:     "empático y resolutivo",
		Extra:    "Recuerda que puedes gestionar tus eventos desde la sección mis eventos. Cualquier duda no dudes en consultarme.",
	},
	"Prestador": {
		Greeting: "Hola prestador, ",
		Tone:     "enfocado en apoyo operativo y resolutivo",
		Extra:    "No olvides mantener tu perfil y disponibilidad actualizados para evitar inconvenientes.",
	},
	"Propietario": {
		Greeting: "Hola propietario, ",
		Tone:     "informativo, estratégico y resolutivo",
		Extra:    "No olvides mantener tu perfil y disponibilidad actualizados para evitar inconvenientes.",
	},
}

var emotionTones = map[string]string{
	signal.EmotionJoy:      "positivo, amable y orientado a soluciones",
	signal.EmotionAnger:    "serio, conciliador y orientado a soluciones",
	signal.EmotionDisgust:  "profesional y directo",
	signal.EmotionFear:     "tranquilizador, empático y claro",
	signal.EmotionSadness:  "consolador, empático y paciente",
	signal.EmotionSurprise: "informativo y claro",
}

// ProfileFor returns the voice profile for a role, falling back to the
// Prestador profile for unknown roles.
func ProfileFor(role string) RoleProfile {
	if p, ok := roleProfiles[role]; ok {
		return p
	}
	return roleProfiles[DefaultRole]
}

// ToneFor maps a detected emotion to a response tone. Unknown emotions
// (including "neutral") fall back to the role's own tone.
func ToneFor(emotion string, profile RoleProfile) string {
	if t, ok := emotionTones[emotion]; ok {
		return t
	}
	if profile.Tone != "" {
		return profile.Tone
	}
	return "neutral"
}

// TrustNote returns the closing note for a reply: whether the chosen
// solution is endorsed by the system or should be double-checked. found
// reports whether the knowledge base produced any matched candidate.
func TrustNote(fusedConfidence float64, found bool) string {
	if !found {
		return noMatchNote
	}
	if fusedConfidence >= TrustThreshold {
		return trustedNote
	}
	return untrustedNote
}

// Input carries everything the composer needs to render a reply.
type Input struct {
	Message         string
	Role            string
	ProblemType     string
	Solution        string
	Justification   string
	Category        string
	Emotion         signal.Emotion
	MLConfidence    float64
	FusedConfidence float64
	Found           bool
}

// Composer turns a resolved triage decision into natural-language text.
type Composer struct {
	provider llm.Provider
}

// New returns a Composer backed by the given LLM provider.
func New(provider llm.Provider) *Composer {
	return &Composer{provider: provider}
}

// Compose generates the final reply. A generation failure is returned to the
// caller; there is no canned substitute for the full-pipeline path.
func (c *Composer) Compose(ctx context.Context, in Input) (string, error) {
	prompt := buildPrompt(in)
	reply, err := c.provider.Complete(ctx, prompt, llm.CompletionOpts{Temperature: 0.3})
	if err != nil {
		return "", fmt.Errorf("composing reply: %w", err)
	}
	return reply, nil
}

func buildPrompt(in Input) string {
	profile := ProfileFor(in.Role)
	tone := ToneFor(in.Emotion.Label, profile)
	note := TrustNote(in.FusedConfidence, in.Found)

	var b strings.Builder
	b.WriteString("Como asistente del sistema Wevently para la organización de eventos privados donde organizadores, prestadores de servicios y propietarios de lugar operan, contesta a la pregunta del usuario.")
	b.WriteString(profile.Greeting)
	fmt.Fprintf(&b, "Se detectó el problema: %s. ", in.ProblemType)
	fmt.Fprintf(&b, "Solución sugerida: %s%s. ", in.Solution, in.Justification)
	fmt.Fprintf(&b, "Por favor responde en un tono %s. ", tone)
	fmt.Fprintf(&b, "(Categoría ML: %s, Emoción detectada: %s, score emoción: %.2f, confianza ML: %.2f, confianza fuzzy: %.2f). ",
		in.Category, in.Emotion.Label, in.Emotion.Score, in.MLConfidence, in.FusedConfidence)
	fmt.Fprintf(&b, "Mensaje original: %s\n", in.Message)
	fmt.Fprintf(&b, "%s\n%s", profile.Extra, note)
	return b.String()
}
