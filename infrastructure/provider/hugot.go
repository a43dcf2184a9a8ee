package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/helixml/codestore/domain/embedding"
)

// DefaultLocalBatchMax bounds the texts passed to the pipeline at once.
const DefaultLocalBatchMax = 10

// ErrModelNotFound indicates no model directory with a tokenizer exists.
var ErrModelNotFound = errors.New("local embedding model not found")

// localRuntime holds the process-wide session and the pipelines loaded into
// it. ONNX Runtime allows one session per process and is not thread-safe, so
// the mutex covers both loading and inference.
var localRuntime struct {
	mu        sync.Mutex
	session   *hugot.Session
	pipelines map[string]*pipelines.FeatureExtractionPipeline
}

// LocalConfig holds configuration for a local backend.
type LocalConfig struct {
	Name     string
	ModelDir string
	BatchMax int
}

// LocalBackend generates embeddings in-process with a sentence-transformer
// model loaded through hugot. It ignores credentials.
//
// ModelDir is either the model directory itself or a directory holding one
// model subdirectory; a model directory is recognised by its tokenizer.json.
type LocalBackend struct {
	name     string
	modelDir string
	batchMax int
}

// NewLocalBackend creates a local backend. The model loads on first use.
func NewLocalBackend(cfg LocalConfig) *LocalBackend {
	name := cfg.Name
	if name == "" {
		name = "local"
	}
	batchMax := cfg.BatchMax
	if batchMax <= 0 {
		batchMax = DefaultLocalBatchMax
	}
	return &LocalBackend{name: name, modelDir: cfg.ModelDir, batchMax: batchMax}
}

// Name returns the backend name.
func (b *LocalBackend) Name() string { return b.name }

// Model returns the model directory name.
func (b *LocalBackend) Model() string {
	if b.modelDir == "" {
		return ""
	}
	path, err := b.modelPath()
	if err != nil {
		return filepath.Base(b.modelDir)
	}
	return filepath.Base(path)
}

// Available reports whether a model exists on disk.
func (b *LocalBackend) Available() bool {
	_, err := b.modelPath()
	return err == nil
}

// Embed runs the feature extraction pipeline over texts in slices of at most
// BatchMax.
func (b *LocalBackend) Embed(ctx context.Context, _ embedding.Credential, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := b.modelPath()
	if err != nil {
		return nil, err
	}

	localRuntime.mu.Lock()
	defer localRuntime.mu.Unlock()

	pipeline, err := loadPipeline(path)
	if err != nil {
		return nil, fmt.Errorf("initialize local model: %w", err)
	}

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchMax {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+b.batchMax, len(texts))

		result, err := pipeline.RunPipeline(texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("run embedding pipeline: %w", err)
		}
		for _, vec32 := range result.Embeddings {
			vec64 := make([]float64, len(vec32))
			for j, v := range vec32 {
				vec64[j] = float64(v)
			}
			vectors = append(vectors, vec64)
		}
	}
	return vectors, nil
}

// modelPath resolves the directory holding tokenizer.json.
func (b *LocalBackend) modelPath() (string, error) {
	if b.modelDir == "" {
		return "", fmt.Errorf("%w: no model directory configured", ErrModelNotFound)
	}
	if hasTokenizer(b.modelDir) {
		return b.modelDir, nil
	}

	entries, err := os.ReadDir(b.modelDir)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrModelNotFound, b.modelDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(b.modelDir, entry.Name())
		if hasTokenizer(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no tokenizer.json under %s", ErrModelNotFound, b.modelDir)
}

func hasTokenizer(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "tokenizer.json"))
	return err == nil
}

// loadPipeline returns the pipeline for path, creating the shared session
// and the pipeline on first use. Callers hold localRuntime.mu.
func loadPipeline(path string) (*pipelines.FeatureExtractionPipeline, error) {
	if p, ok := localRuntime.pipelines[path]; ok {
		return p, nil
	}

	if localRuntime.session == nil {
		session, err := newLocalSession()
		if err != nil {
			return nil, fmt.Errorf("create hugot session: %w", err)
		}
		localRuntime.session = session
		localRuntime.pipelines = make(map[string]*pipelines.FeatureExtractionPipeline)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: path,
		Name:      fmt.Sprintf("embeddings-%d", len(localRuntime.pipelines)),
		Options: []hugot.FeatureExtractionOption{
			pipelines.WithNormalization(),
		},
	}
	pipeline, err := hugot.NewPipeline(localRuntime.session, config)
	if err != nil {
		return nil, fmt.Errorf("create feature extraction pipeline: %w", err)
	}
	localRuntime.pipelines[path] = pipeline
	return pipeline, nil
}

// CloseLocalRuntime destroys the shared session and drops its pipelines.
// A later Embed call starts a new session.
func CloseLocalRuntime() error {
	localRuntime.mu.Lock()
	defer localRuntime.mu.Unlock()

	if localRuntime.session == nil {
		return nil
	}
	err := localRuntime.session.Destroy()
	localRuntime.session = nil
	localRuntime.pipelines = nil
	return err
}

var _ embedding.Backend = (*LocalBackend)(nil)
