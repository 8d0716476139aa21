package openai

import (
	"context"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/pkg/errors"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"rubberbot/internal/embedding"
	"rubberbot/internal/vector"
)

const probeText = "rubber"

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	BatchSize         int
	Concurrency       int
	MaxRetries        int
	RequestsPerSecond float64
}

// Client is a pretrained dense encoder reached over an OpenAI-compatible
// /embeddings endpoint (OpenAI, Ollama, vLLM, ...).
type Client struct {
	api         *goopenai.Client
	model       string
	batchSize   int
	concurrency int
	maxRetries  int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// Model records the encoder identity and its output dimension.
type Model struct {
	Name string
	Dim  int
}

// Kind reports that encoder vectors are dense.
func (m *Model) Kind() vector.Kind { return vector.KindDense }

// Dimension returns the encoder output size.
func (m *Model) Dimension() int { return m.Dim }

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "all-minilm"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		api:         goopenai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		maxRetries:  cfg.MaxRetries,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      logger.With(zap.String("embedder", "openai"), zap.String("model", cfg.Model)),
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Fit does not learn from the corpus; the encoder is pretrained. It issues
// one probe request to confirm the endpoint is reachable and to learn the
// output dimension.
func (c *Client) Fit(ctx context.Context, _ []string) (embedding.FittedModel, error) {
	out, err := c.create(ctx, []string{probeText})
	if err != nil {
		return nil, errors.Wrap(err, "probe embedding")
	}
	dim := len(out[0])
	c.logger.Info("dense encoder reachable", zap.Int("dimension", dim))
	return &Model{Name: c.model, Dim: dim}, nil
}

// Embed returns the unit-length embedding of text.
func (c *Client) Embed(ctx context.Context, text string, model embedding.FittedModel) (vector.Vector, error) {
	if err := embedding.CheckText(text); err != nil {
		return vector.Vector{}, err
	}
	vecs, err := c.EmbedBatch(ctx, []string{text}, model)
	if err != nil {
		return vector.Vector{}, err
	}
	return vecs[0], nil
}

// EmbedBatch encodes texts in batches, several batches in flight at once.
// Output order matches input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, model embedding.FittedModel) ([]vector.Vector, error) {
	m, ok := model.(*Model)
	if !ok || m == nil {
		return nil, errors.New("openai embedder requires a probed model")
	}
	for _, text := range texts {
		if err := embedding.CheckText(text); err != nil {
			return nil, err
		}
	}

	out := make([]vector.Vector, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for start := 0; start < len(texts); start += c.batchSize {
		start := start
		end := min(start+c.batchSize, len(texts))
		g.Go(func() error {
			raw, err := c.create(gctx, texts[start:end])
			if err != nil {
				return errors.Wrapf(err, "embed batch %d-%d", start, end)
			}
			for i, values := range raw {
				if len(values) != m.Dim {
					return errors.Errorf("embedding dimension %d, expected %d", len(values), m.Dim)
				}
				out[start+i] = vector.Dense(values).Normalize()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// create calls the endpoint with retries and returns one embedding per input.
func (c *Client) create(ctx context.Context, inputs []string) ([][]float64, error) {
	req := goopenai.EmbeddingRequestStrings{
		Input: inputs,
		Model: goopenai.EmbeddingModel(c.model),
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.api.CreateEmbeddings(ctx, req)
		if err == nil {
			return decode(resp, len(inputs))
		}
		lastErr = err
		if !retryable(err) || attempt == c.maxRetries {
			break
		}
		c.logger.Debug("embedding request failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay(attempt)):
		}
	}
	return nil, errors.Wrap(lastErr, "create embeddings")
}

func decode(resp goopenai.EmbeddingResponse, want int) ([][]float64, error) {
	if len(resp.Data) != want {
		return nil, errors.Errorf("endpoint returned %d embeddings for %d inputs", len(resp.Data), want)
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float64, len(data))
	for i, d := range data {
		if len(d.Embedding) == 0 {
			return nil, errors.New("empty embedding")
		}
		values := make([]float64, len(d.Embedding))
		for j, x := range d.Embedding {
			f := float64(x)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, errors.Errorf("non-finite value at position %d of embedding %d", j, i)
			}
			values[j] = f
		}
		out[i] = values
	}
	return out, nil
}

func retryable(err error) bool {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
