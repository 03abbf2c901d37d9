// Package plan decides whether a message warrants the full triage
// pipeline or an immediate fallback. The gate is a pure function of the
// classifier result, the extracted keywords, and the configured domain
// vocabulary — no I/O, no clock, fully deterministic.
package plan

import (
	"fmt"

	"github.com/wevently/triage/internal/classify"
)

// DefaultConfidenceThreshold is the classifier confidence below which the
// pipeline short-circuits to the fallback answer.
const DefaultConfidenceThreshold = 0.1

// DefaultDomainKeywords is the closed vocabulary marking a message as
// within the payments-and-events support domain.
var DefaultDomainKeywords = []string{
	"pago", "pagos", "pagar", "pagué", "pague",
	"acreditar", "acredita", "acreditación", "acreditacion",
	"calendario", "no", "anda", "fallo", "falló",
	"transferencia", "transaccion", "transacción", "tarjeta",
	"debito", "débito", "credito", "crédito",
	"comision", "comisión", "comisiones", "cobro", "cobran", "tarifa",
	"devolución", "devolucion",
	"rechazar", "rechazo", "rechazado", "rechazó", "rechaza",
	"servicio", "proveedor", "prestador", "reclamo",
	"cancelacion", "cancelación", "evento", "eventos", "reintentar",
}

// Plan is the gate decision handed to the pipeline. Consumed read-only
// downstream and embedded in the audit record.
type Plan struct {
	Category            string   `json:"categoria_ml"`
	Confidence          float64  `json:"confianza_ml"`
	Keywords            []string `json:"keywords"`
	ExecuteFullPipeline bool     `json:"ejecutar_flujo_completo"`
	Justification       []string `json:"justificacion"`
}

// Options configures the gate. Zero values select the defaults above.
type Options struct {
	ConfidenceThreshold float64
	DomainKeywords      []string
}

// Build evaluates the gate rules in order, first match wins:
// out-of-domain category, confidence below threshold, no domain keyword
// overlap, else full pipeline.
func Build(cls classify.Result, keywords []string, opts Options) Plan {
	threshold := opts.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	domain := opts.DomainKeywords
	if len(domain) == 0 {
		domain = DefaultDomainKeywords
	}

	p := Plan{
		Category:            cls.Category,
		Confidence:          cls.Confidence,
		Keywords:            keywords,
		ExecuteFullPipeline: true,
	}

	if cls.OutOfDomain() {
		p.ExecuteFullPipeline = false
		p.Justification = append(p.Justification,
			fmt.Sprintf("Categoría ML: %s o confianza baja %.2f. Fallback inmediato.", classify.CategoryOutOfDomain, cls.Confidence))
		return p
	}
	if cls.Confidence < threshold {
		p.ExecuteFullPipeline = false
		p.Justification = append(p.Justification,
			fmt.Sprintf("Confianza ML (%.2f) < umbral (%.2f). Fallback inmediato.", cls.Confidence, threshold))
		return p
	}
	if !hasDomainOverlap(keywords, domain) {
		p.ExecuteFullPipeline = false
		p.Justification = append(p.Justification, "Sin keywords relevantes de dominio. Fallback.")
		return p
	}

	p.Justification = append(p.Justification,
		"Confianza ML suficiente y keywords relevantes en dominio. Ejecuto flujo completo.")
	return p
}

func hasDomainOverlap(keywords, domain []string) bool {
	set := make(map[string]struct{}, len(domain))
	for _, d := range domain {
		set[d] = struct{}{}
	}
	for _, k := range keywords {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}
