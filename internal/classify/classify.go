// Package classify adapts the trained support-category classifier.
//
// The production implementation runs the exported ONNX model locally
// (tokenizer.json + model.onnx + metadata.json in one directory). The
// adapter owns out-of-domain enforcement: any prediction below the model's
// threshold is reported as CategoryOutOfDomain with its original confidence,
// so callers never need to compare against the threshold themselves.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CategoryOutOfDomain is the distinguished label for messages the model
// cannot place in the support domain.
const CategoryOutOfDomain = "NoRepresentaAlDominio"

// DefaultOODThreshold applies when the model metadata omits one.
const DefaultOODThreshold = 0.1

// Result holds one category prediction.
type Result struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// OutOfDomain reports whether the prediction was gated to the
// out-of-domain category.
func (r Result) OutOfDomain() bool {
	return r.Category == CategoryOutOfDomain
}

// Classifier predicts a support category for a raw user message.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
	Name() string
}

// Metadata describes the exported model: its label order and the
// out-of-domain confidence threshold chosen during training.
type Metadata struct {
	Labels       []string `json:"labels"`
	OODThreshold float64  `json:"umbral_ood"`
	MaxLength    int      `json:"max_length,omitempty"`
}

// LoadMetadata reads metadata.json from the model directory.
func LoadMetadata(modelDir string) (Metadata, error) {
	var md Metadata
	b, err := os.ReadFile(filepath.Join(modelDir, "metadata.json"))
	if err != nil {
		return md, fmt.Errorf("reading model metadata: %w", err)
	}
	if err := json.Unmarshal(b, &md); err != nil {
		return md, fmt.Errorf("parsing model metadata: %w", err)
	}
	if len(md.Labels) == 0 {
		return md, fmt.Errorf("model metadata has no labels")
	}
	if md.OODThreshold <= 0 {
		md.OODThreshold = DefaultOODThreshold
	}
	if md.MaxLength <= 0 {
		md.MaxLength = 128
	}
	return md, nil
}

// gate applies the out-of-domain threshold to a raw prediction.
func gate(category string, confidence, threshold float64) Result {
	if confidence < threshold {
		return Result{Category: CategoryOutOfDomain, Confidence: confidence}
	}
	return Result{Category: category, Confidence: confidence}
}
