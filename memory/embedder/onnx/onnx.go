//go:build onnx

// Package onnx implements the memory.Embedder interface with a local
// all-MiniLM-L6-v2 model running under ONNX Runtime. It gives real
// semantic similarity without any network dependency; build with the
// onnx tag and ship the model plus tokenizer files alongside the agent.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// maxSeqLen is the MiniLM input sequence length.
const maxSeqLen = 128

var ortInit sync.Once

// Config configures the ONNX embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file. Required.
	ModelPath string

	// TokenizerPath is the path to the HuggingFace tokenizer.json.
	TokenizerPath string

	// SharedLibraryPath locates libonnxruntime.so. Empty means the
	// runtime's default search path.
	SharedLibraryPath string

	// Dimensions is the embedding size, 384 for all-MiniLM-L6-v2.
	Dimensions int
}

// Embedder runs sentence embedding inference through ONNX Runtime.
type Embedder struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *wordPieceTokenizer
	dimensions int
}

// New creates an ONNX-backed embedder.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ModelPath is required")
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 384
	}

	var initErr error
	ortInit.Do(func() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", initErr)
	}

	tokenizer, err := loadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &Embedder{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: cfg.Dimensions,
	}, nil
}

// Embed converts text to its embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	inputIDs, attentionMask := e.tokenizer.encode(text)
	tokenTypeIDs := make([]int64, maxSeqLen)

	shape := ort.NewShape(1, int64(maxSeqLen))
	inputTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("create input_ids tensor: %w", err)
	}
	defer inputTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	typeTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("create token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputTensor, maskTensor, typeTensor}, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	if len(outputs) == 0 || outputs[0] == nil {
		return nil, fmt.Errorf("onnx inference: no output tensor")
	}
	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("onnx inference: unexpected output tensor type")
	}

	embedding, err := e.pool(hidden, attentionMask)
	if err != nil {
		return nil, err
	}
	return normalize(embedding), nil
}

// pool reduces the model output to a single sentence vector. A 2D output
// is already pooled by the model; a 3D output needs mean pooling over the
// attended tokens.
func (e *Embedder) pool(hidden *ort.Tensor[float32], attentionMask []int64) ([]float32, error) {
	data := hidden.GetData()
	shape := hidden.GetShape()

	switch len(shape) {
	case 2:
		if len(data) < e.dimensions {
			return nil, fmt.Errorf("output dimension mismatch: got %d, want %d", len(data), e.dimensions)
		}
		embedding := make([]float32, e.dimensions)
		copy(embedding, data[:e.dimensions])
		return embedding, nil

	case 3:
		seqLen, hiddenSize := int(shape[1]), int(shape[2])
		if shape[0] != 1 {
			return nil, fmt.Errorf("expected batch size 1, got %d", shape[0])
		}
		if hiddenSize != e.dimensions {
			return nil, fmt.Errorf("hidden size mismatch: got %d, want %d", hiddenSize, e.dimensions)
		}

		embedding := make([]float32, hiddenSize)
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * hiddenSize
			for j := 0; j < hiddenSize; j++ {
				embedding[j] += data[offset+j]
			}
		}
		if attended == 0 {
			return embedding, nil
		}
		for j := range embedding {
			embedding[j] /= attended
		}
		return embedding, nil

	default:
		return nil, fmt.Errorf("unexpected output shape: %v", shape)
	}
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close releases the ONNX session.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// wordPieceTokenizer is a minimal BERT WordPiece tokenizer, enough for
// MiniLM sentence embedding.
type wordPieceTokenizer struct {
	vocab map[string]int
	cls   int
	sep   int
	unk   int
}

func loadTokenizer(path string) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return &wordPieceTokenizer{
		vocab: parsed.Model.Vocab,
		cls:   101,
		sep:   102,
		unk:   100,
	}, nil
}

// encode produces fixed-length input ids plus attention mask, with [CLS]
// and [SEP] framing and truncation to the model's sequence length.
func (t *wordPieceTokenizer) encode(text string) (inputIDs, attentionMask []int64) {
	tokens := t.tokenize(text)

	inputIDs = make([]int64, maxSeqLen)
	attentionMask = make([]int64, maxSeqLen)

	inputIDs[0] = int64(t.cls)
	attentionMask[0] = 1

	n := len(tokens)
	if n > maxSeqLen-2 {
		n = maxSeqLen - 2
	}
	for i := 0; i < n; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}

	inputIDs[n+1] = int64(t.sep)
	attentionMask[n+1] = 1
	return inputIDs, attentionMask
}

func (t *wordPieceTokenizer) tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, piece := range t.split(word) {
			if id, ok := t.vocab[piece]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, int64(t.unk))
			}
		}
	}
	return tokens
}

// split breaks an out-of-vocabulary word into the longest matching
// WordPiece subwords.
func (t *wordPieceTokenizer) split(word string) []string {
	var pieces []string
	start := 0
	for start < len(word) {
		end := len(word)
		matched := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if _, ok := t.vocab[piece]; ok {
				pieces = append(pieces, piece)
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			pieces = append(pieces, "[UNK]")
			start++
		}
	}
	return pieces
}
