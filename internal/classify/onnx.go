package classify

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"
)

// ortInit guards one-time ONNX runtime environment setup for the process.
var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// ONNXClassifier runs the exported sequence-classification model locally.
// A single session is shared across requests; onnxruntime sessions are safe
// for concurrent Run calls.
type ONNXClassifier struct {
	tk        *tokenizer.Tokenizer
	session   *ort.DynamicAdvancedSession
	metadata  Metadata
	modelName string

	mu sync.Mutex
}

// NewONNXClassifier loads tokenizer.json, metadata.json and model.onnx from
// modelDir. The caller owns the returned classifier and must Close it.
func NewONNXClassifier(modelDir string) (*ONNXClassifier, error) {
	md, err := LoadMetadata(modelDir)
	if err != nil {
		return nil, err
	}

	tk, err := pretrained.FromFile(filepath.Join(modelDir, "tokenizer.json"))
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}

	ortInitOnce.Do(func() {
		if lib := os.Getenv("TRIAGE_ONNXRUNTIME_LIB"); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		if !ort.IsInitialized() {
			ortInitErr = ort.InitializeEnvironment()
		}
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("initializing onnxruntime: %w", ortInitErr)
	}

	session, err := ort.NewDynamicAdvancedSession(
		filepath.Join(modelDir, "model.onnx"),
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("opening onnx session: %w", err)
	}

	return &ONNXClassifier{
		tk:        tk,
		session:   session,
		metadata:  md,
		modelName: filepath.Base(modelDir),
	}, nil
}

func (c *ONNXClassifier) Name() string {
	return "onnx/" + c.modelName
}

// Classify tokenizes the text, runs the model, and returns the argmax
// category after softmax, gated by the out-of-domain threshold.
func (c *ONNXClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	enc, err := c.tk.EncodeSingle(text, true)
	if err != nil {
		return Result{}, fmt.Errorf("tokenizing input: %w", err)
	}

	ids := enc.Ids
	mask := enc.AttentionMask
	if len(ids) > c.metadata.MaxLength {
		ids = ids[:c.metadata.MaxLength]
		mask = mask[:c.metadata.MaxLength]
	}
	if len(ids) == 0 {
		return Result{Category: CategoryOutOfDomain, Confidence: 0}, nil
	}

	seqLen := int64(len(ids))
	inputIDs := make([]int64, seqLen)
	attention := make([]int64, seqLen)
	for i := range ids {
		inputIDs[i] = int64(ids[i])
		attention[i] = int64(mask[i])
	}

	shape := ort.NewShape(1, seqLen)
	idTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return Result{}, fmt.Errorf("creating input tensor: %w", err)
	}
	defer idTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, attention)
	if err != nil {
		return Result{}, fmt.Errorf("creating mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputs := []ort.Value{nil}
	c.mu.Lock()
	err = c.session.Run([]ort.Value{idTensor, maskTensor}, outputs)
	c.mu.Unlock()
	if err != nil {
		return Result{}, fmt.Errorf("running model: %w", err)
	}
	logitsTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Result{}, fmt.Errorf("unexpected model output type %T", outputs[0])
	}
	defer logitsTensor.Destroy()

	logits := logitsTensor.GetData()
	if len(logits) != len(c.metadata.Labels) {
		return Result{}, fmt.Errorf("model returned %d logits for %d labels",
			len(logits), len(c.metadata.Labels))
	}

	probs := softmax(logits)
	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}

	return gate(c.metadata.Labels[best], probs[best], c.metadata.OODThreshold), nil
}

// Close releases the ONNX session.
func (c *ONNXClassifier) Close() error {
	return c.session.Destroy()
}

func softmax(logits []float32) []float64 {
	max := float64(logits[0])
	for _, l := range logits[1:] {
		if float64(l) > max {
			max = float64(l)
		}
	}
	var sum float64
	out := make([]float64, len(logits))
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
