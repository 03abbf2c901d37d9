// Package route wires the triage stages into a single decision pipeline:
// classify, gate, extract signals, score, query the knowledge base,
// disambiguate, compose, audit. The engine owns staging and timing; each
// stage's semantics live in its own package.
package route

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/wevently/triage/internal/audit"
	"github.com/wevently/triage/internal/classify"
	"github.com/wevently/triage/internal/compose"
	"github.com/wevently/triage/internal/fuzzy"
	"github.com/wevently/triage/internal/kb"
	"github.com/wevently/triage/internal/llm"
	"github.com/wevently/triage/internal/plan"
	"github.com/wevently/triage/internal/signal"
)

// EmotionNotApplicable is reported when the gate short-circuits before
// emotion detection runs.
const EmotionNotApplicable = "N/A"

// Default stage deadlines. The LLM budget covers one completion call.
const (
	DefaultLLMTimeout = 15 * time.Second
	DefaultKBTimeout  = 5 * time.Second
)

// Config assembles an Engine. Classifier, Keywords, Emotions, Store,
// Selector and Composer are required; Recorder is optional.
type Config struct {
	Classifier classify.Classifier
	Keywords   signal.KeywordExtractor
	Emotions   signal.EmotionDetector
	Store      kb.Querier
	Selector   llm.Provider
	Composer   *compose.Composer
	Recorder   *audit.Recorder
	Logger     zerolog.Logger

	PlanOptions plan.Options
	LLMTimeout  time.Duration
	KBTimeout   time.Duration
}

// Engine runs the full triage pipeline for one message at a time. Safe for
// concurrent use as long as its collaborators are.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

// Result is what a caller gets back for one handled message.
type Result struct {
	Response   string
	Keywords   []string
	Emotion    signal.Emotion
	Confidence float64
}

// New returns an Engine over the given collaborators.
func New(cfg Config) *Engine {
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = DefaultLLMTimeout
	}
	if cfg.KBTimeout <= 0 {
		cfg.KBTimeout = DefaultKBTimeout
	}
	return &Engine{cfg: cfg, log: cfg.Logger}
}

// Fuse combines the fuzzy keyword score with the strongest knowledge-base
// candidate by the max rule. Candidates must already be ranked; a top
// candidate with no keyword matches contributes nothing.
func Fuse(fuzzyConfidence float64, candidates []kb.Candidate) float64 {
	if len(candidates) == 0 || candidates[0].MatchedCount == 0 {
		return fuzzyConfidence
	}
	if candidates[0].StoredConfidence > fuzzyConfidence {
		return candidates[0].StoredConfidence
	}
	return fuzzyConfidence
}

// Handle runs the pipeline for one message and returns the reply plus the
// signals that produced it. Only composition failures are fatal; every
// other stage degrades.
func (e *Engine) Handle(ctx context.Context, text, role string) (Result, error) {
	start := time.Now()
	log := e.log.With().Str("role", role).Logger()

	// Classification and keyword extraction both feed the gate and have no
	// ordering dependency, so they run concurrently.
	var (
		cls     classify.Result
		clsErr  error
		kws     []string
		kwsTime time.Duration
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		kwStart := time.Now()
		kws = e.extractKeywords(ctx, text)
		kwsTime = time.Since(kwStart)
	}()
	cls, clsErr = e.cfg.Classifier.Classify(ctx, text)
	if clsErr != nil {
		// A dead classifier must not take support down with it; treat the
		// message as out of domain and let the gate short-circuit.
		log.Warn().Err(clsErr).Msg("classifier failed, gating to fallback")
		cls = classify.Result{Category: classify.CategoryOutOfDomain}
	}
	<-done

	p := plan.Build(cls, kws, e.cfg.PlanOptions)
	log.Debug().
		Str("category", p.Category).
		Float64("confidence", p.Confidence).
		Bool("full_pipeline", p.ExecuteFullPipeline).
		Msg("gate decision")

	if !p.ExecuteFullPipeline {
		res := Result{
			Response:   compose.FallbackReply,
			Keywords:   []string{},
			Emotion:    signal.Emotion{Label: EmotionNotApplicable},
			Confidence: p.Confidence,
		}
		e.record(audit.Record{
			Input:        text,
			Role:         role,
			Category:     p.Category,
			MLConfidence: p.Confidence,
			Keywords:     p.Keywords,
			Plan:         p,
			Response:     res.Response,
		})
		return res, nil
	}

	// Emotion detection and the knowledge-base lookup are independent once
	// the gate has passed.
	var (
		emotion signal.Emotion
		emoTime time.Duration
	)
	emoDone := make(chan struct{})
	go func() {
		defer close(emoDone)
		emoStart := time.Now()
		emotion = e.detectEmotion(ctx, text)
		emoTime = time.Since(emoStart)
	}()

	fuzzyStart := time.Now()
	fuzzyConf := fuzzy.Score(len(kws))
	fuzzyTime := time.Since(fuzzyStart)

	kbStart := time.Now()
	candidates := e.queryStore(ctx, kws, role, log)
	kbTime := time.Since(kbStart)
	<-emoDone

	kb.Rank(candidates)
	fused := Fuse(fuzzyConf, candidates)
	found := len(candidates) > 0 && candidates[0].MatchedCount > 0

	llmStart := time.Now()
	sel := e.selectSolution(ctx, text, p.Category, emotion.Label, candidates, log)

	matched := []string{}
	problemType, solution := "No definido", "No definida"
	if sel.Candidate != nil {
		problemType = sel.Candidate.ProblemType
		solution = sel.Candidate.Solution
		matched = sel.Candidate.MatchedKeywords
	}

	reply, err := e.cfg.Composer.Compose(ctx, compose.Input{
		Message:         text,
		Role:            role,
		ProblemType:     problemType,
		Solution:        solution,
		Justification:   sel.Justification,
		Category:        p.Category,
		Emotion:         emotion,
		MLConfidence:    p.Confidence,
		FusedConfidence: fused,
		Found:           found,
	})
	llmTime := time.Since(llmStart)
	if err != nil {
		// The only stage with no degraded answer; without the generator
		// there is nothing to send back.
		log.Error().Err(err).
			Str("category", p.Category).
			Str("problem_type", problemType).
			Str("selection", sel.Source).
			Msg("response composition failed")
		return Result{}, err
	}

	totalTime := time.Since(start)
	log.Info().
		Str("problem_type", problemType).
		Str("selection", sel.Source).
		Float64("fused_confidence", fused).
		Dur("total", totalTime).
		Msg("message handled")

	e.record(audit.Record{
		Input:           text,
		Role:            role,
		Category:        p.Category,
		MLConfidence:    p.Confidence,
		Keywords:        kws,
		Emotion:         emotion.Label,
		FuzzyConfidence: fuzzyConf,
		FusedConfidence: fused,
		ProblemType:     problemType,
		Solution:        solution,
		MatchedKeywords: matched,
		Selection:       sel.Source,
		Response:        reply,
		Plan:            p,
		Timings: &audit.Timings{
			KeywordsMS: ms(kwsTime),
			EmotionMS:  ms(emoTime),
			FuzzyMS:    ms(fuzzyTime),
			KBMS:       ms(kbTime),
			LLMMS:      ms(llmTime),
			TotalMS:    ms(totalTime),
		},
	})

	return Result{
		Response:   reply,
		Keywords:   kws,
		Emotion:    emotion,
		Confidence: fused,
	}, nil
}

func (e *Engine) extractKeywords(ctx context.Context, text string) []string {
	kws, err := e.cfg.Keywords.Keywords(ctx, text)
	if err != nil {
		// Extractors degrade internally; an error here means even the
		// heuristic path broke. Continue with no keywords.
		e.log.Warn().Err(err).Msg("keyword extraction failed")
		return nil
	}
	return kws
}

func (e *Engine) detectEmotion(ctx context.Context, text string) signal.Emotion {
	emo, err := e.cfg.Emotions.Detect(ctx, text)
	if err != nil {
		e.log.Warn().Err(err).Msg("emotion detection failed")
		return signal.Emotion{Label: signal.EmotionNeutral}
	}
	return emo
}

func (e *Engine) queryStore(ctx context.Context, kws []string, role string, log zerolog.Logger) []kb.Candidate {
	qCtx, cancel := context.WithTimeout(ctx, e.cfg.KBTimeout)
	defer cancel()

	candidates, err := e.cfg.Store.Query(qCtx, kws, role)
	if err != nil {
		if errors.Is(err, kb.ErrUnavailable) {
			log.Warn().Err(err).Msg("knowledge store unavailable, continuing without candidates")
			return nil
		}
		log.Warn().Err(err).Msg("knowledge store query failed")
		return nil
	}
	return candidates
}

func (e *Engine) selectSolution(ctx context.Context, text, category, emotion string, candidates []kb.Candidate, log zerolog.Logger) Selection {
	sCtx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	defer cancel()

	sel := Disambiguate(sCtx, e.cfg.Selector, text, category, emotion, candidates)
	log.Debug().Str("source", sel.Source).Int("index", sel.Index).Msg("solution selected")
	return sel
}

func (e *Engine) record(rec audit.Record) {
	if e.cfg.Recorder == nil {
		return
	}
	if err := e.cfg.Recorder.Append(rec); err != nil {
		e.log.Error().Err(err).Msg("audit append failed")
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
