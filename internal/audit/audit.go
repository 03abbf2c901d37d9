// Package audit persists one NDJSON record per handled message. The file is
// append-only: records are never rewritten, so the log doubles as a test
// corpus for offline evaluation of the pipeline.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Timings captures per-stage latencies in milliseconds.
type Timings struct {
	KeywordsMS float64 `json:"keywords_ms"`
	EmotionMS  float64 `json:"emocion_ms"`
	FuzzyMS    float64 `json:"fuzzy_ms"`
	KBMS       float64 `json:"neo4j_ms"`
	LLMMS      float64 `json:"llm_ms"`
	TotalMS    float64 `json:"total_ms"`
}

// Record is a single audit entry. Field names stay stable across releases;
// downstream analysis scripts key on them.
type Record struct {
	TestID          string   `json:"test_id"`
	Input           string   `json:"entrada"`
	Role            string   `json:"tipo_usuario"`
	Category        string   `json:"categoria_predicha_ml"`
	MLConfidence    float64  `json:"confianza_ml"`
	Keywords        []string `json:"keywords"`
	Emotion         string   `json:"emocion,omitempty"`
	FuzzyConfidence float64  `json:"confianza_fuzzy,omitempty"`
	FusedConfidence float64  `json:"confianza_fusionada,omitempty"`
	ProblemType     string   `json:"tipo_problema,omitempty"`
	Solution        string   `json:"solucion,omitempty"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	Selection       string   `json:"seleccion,omitempty"`
	Response        string   `json:"respuesta"`
	Plan            any      `json:"plan,omitempty"`
	Timings         *Timings `json:"tiempos,omitempty"`
}

// Recorder appends records to an NDJSON file. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	path string
}

// NewRecorder creates a Recorder writing to path, creating parent
// directories as needed.
func NewRecorder(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit dir: %w", err)
		}
	}
	return &Recorder{path: path}, nil
}

// Path returns the file the recorder appends to.
func (r *Recorder) Path() string { return r.path }

// NewTestID returns a fresh record identifier.
func NewTestID() string {
	return time.Now().UTC().Format(time.RFC3339Nano) + "-" + uuid.NewString()[:8]
}

// Append writes rec as a single NDJSON line. If rec.TestID is empty a fresh
// one is assigned. The file handle is opened and closed per call so a
// crashed process never holds a partial line.
func (r *Recorder) Append(rec Record) error {
	if rec.TestID == "" {
		rec.TestID = NewTestID()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}
	return nil
}

// ReadAll loads every record from the log. A missing file yields an empty
// slice. Malformed lines are skipped rather than aborting the read, so a
// torn final line from a crash does not poison the whole log.
func (r *Recorder) ReadAll() ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	return records, nil
}

// Stats summarizes the audit log for observability surfaces.
type Stats struct {
	Total          int            `json:"total"`
	FullPipeline   int            `json:"flujo_completo"`
	ShortCircuited int            `json:"fallback"`
	BySelection    map[string]int `json:"por_seleccion,omitempty"`
	AvgConfidence  float64        `json:"confianza_promedio"`
	AvgTotalMS     float64        `json:"total_ms_promedio"`
}

// Summarize computes aggregate stats over the whole log.
func (r *Recorder) Summarize() (Stats, error) {
	records, err := r.ReadAll()
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	var timed int
	var sumMS, sumConf float64
	for _, rec := range records {
		st.Total++
		if rec.Selection != "" {
			if st.BySelection == nil {
				st.BySelection = make(map[string]int)
			}
			st.BySelection[rec.Selection]++
		}
		conf := rec.FusedConfidence
		if conf == 0 {
			conf = rec.MLConfidence
		}
		sumConf += conf
		if rec.Timings != nil {
			st.FullPipeline++
			timed++
			sumMS += rec.Timings.TotalMS
		} else {
			st.ShortCircuited++
		}
	}
	if st.Total > 0 {
		st.AvgConfidence = sumConf / float64(st.Total)
	}
	if timed > 0 {
		st.AvgTotalMS = sumMS / float64(timed)
	}
	return st, nil
}
