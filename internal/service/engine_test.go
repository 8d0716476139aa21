package service

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rubberbot/internal/domain"
	"rubberbot/internal/embedding"
	"rubberbot/internal/embedding/openai"
	"rubberbot/internal/knowledge"
	"rubberbot/internal/session"
)

type recorder struct {
	mu      sync.Mutex
	answers map[domain.Tier]int
	errors  map[string]int
	entries int
	variant domain.Variant
}

func newRecorder() *recorder {
	return &recorder{answers: map[domain.Tier]int{}, errors: map[string]int{}}
}

func (r *recorder) RecordAnswer(t domain.Tier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers[t]++
}

func (r *recorder) RecordQueryError(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[stage]++
}

func (r *recorder) ObserveRetrieval(time.Duration) {}

func (r *recorder) SetIndex(n int, v domain.Variant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries, r.variant = n, v
}

func (r *recorder) SetSessions(int) {}

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := Initialize(context.Background(), knowledge.Embedded(), opts)
	require.NoError(t, err)
	return e
}

func corpusPositions(t *testing.T) map[string]int {
	t.Helper()
	entries, err := knowledge.Load(knowledge.Embedded())
	require.NoError(t, err)
	pos := make(map[string]int, len(entries))
	for i, e := range entries {
		pos[e.ID] = i
	}
	return pos
}

func TestCorynesporaIsHighConfidence(t *testing.T) {
	e := newEngine(t, Options{})

	resp := e.Answer(context.Background(), "What is Corynespora leaf fall?", "")
	assert.Equal(t, domain.TierHigh, resp.ConfidenceLevel)
	assert.Equal(t, "Diseases", resp.Category)
	assert.GreaterOrEqual(t, resp.Confidence, 0.65)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "What is Corynespora leaf fall disease?", resp.Sources[0].Question)
	assert.Equal(t, resp.Confidence, resp.Sources[0].Score)
}

func TestOutOfDomainQuery(t *testing.T) {
	e := newEngine(t, Options{})

	resp := e.Answer(context.Background(), "What's the weather in Paris tomorrow?", "s1")
	assert.Equal(t, domain.TierLow, resp.ConfidenceLevel)
	assert.NotNil(t, resp.Sources)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, []string{
		"Diseases", "Pests", "Weeds", "Latex Quality",
		"Cultivation", "Climate", "Economics", "Processing",
	}, resp.SuggestedTopics)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"sources":[]`)
}

func TestEmptyQueryDegrades(t *testing.T) {
	rec := newRecorder()
	e := newEngine(t, Options{Metrics: rec})

	resp := e.Answer(context.Background(), "   ", "")
	assert.Equal(t, domain.TierLow, resp.ConfidenceLevel)
	assert.Zero(t, resp.Confidence)
	assert.Equal(t, 1, rec.errors["encode"])
	assert.Equal(t, 1, rec.answers[domain.TierLow])

	_, err := e.Retrieve(context.Background(), "", 3)
	var encErr *domain.QueryEncodingError
	assert.ErrorAs(t, err, &encErr)
}

func TestRetrieveClampsKAndOrders(t *testing.T) {
	e := newEngine(t, Options{})
	pos := corpusPositions(t)

	results, err := e.Retrieve(context.Background(), "leaf fall disease on rubber", 1000)
	require.NoError(t, err)
	require.Len(t, results, len(pos))

	for i := 1; i < len(results); i++ {
		prev, cur := results[i-1], results[i]
		assert.GreaterOrEqual(t, prev.Score, cur.Score)
		if prev.Score == cur.Score {
			assert.Less(t, pos[prev.Entry.ID], pos[cur.Entry.ID])
		}
	}
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}

	results, err = e.Retrieve(context.Background(), "latex", 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)
}

func TestRebuildIsDeterministic(t *testing.T) {
	a := newEngine(t, Options{})
	b := newEngine(t, Options{})

	for _, q := range []string{"tapping panel dryness", "How do I measure DRC?", "smoke house"} {
		ra, err := a.Retrieve(context.Background(), q, 5)
		require.NoError(t, err)
		rb, err := b.Retrieve(context.Background(), q, 5)
		require.NoError(t, err)
		assert.Equal(t, ra, rb, q)
	}
}

func TestCorpusGrowthRoundTrip(t *testing.T) {
	entries, err := knowledge.Load(knowledge.Embedded())
	require.NoError(t, err)
	added := domain.KnowledgeEntry{
		ID:       "pro-099",
		Category: domain.CategoryProcessing,
		Question: "How is skim rubber recovered from centrifuge serum?",
		Answer:   "Skim latex is coagulated with sulphuric acid and processed into skim crepe.",
		Keywords: []string{"skim", "serum"},
	}
	entries = append(entries, added)
	data, err := json.Marshal(entries)
	require.NoError(t, err)

	e, err := Initialize(context.Background(), knowledge.BytesSource{Label: "grown", Data: data}, Options{})
	require.NoError(t, err)

	results, err := e.Retrieve(context.Background(), added.Question, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "pro-099", results[0].Entry.ID)
	assert.GreaterOrEqual(t, results[0].Score, 0.65)
}

func TestLongCorpusQuestionLoads(t *testing.T) {
	entries, err := knowledge.Load(knowledge.Embedded())
	require.NoError(t, err)
	long := domain.KnowledgeEntry{
		ID:       "cul-099",
		Category: domain.CategoryCultivation,
		Question: "How should tapping be scheduled " + strings.Repeat("across a long and detailed season plan ", 40) + "?",
		Answer:   "Follow the panel calendar.",
		Keywords: []string{},
	}
	require.Greater(t, len([]rune(long.Question)), embedding.MaxQueryRunes)
	data, err := json.Marshal(append(entries, long))
	require.NoError(t, err)
	src := knowledge.BytesSource{Label: "long", Data: data}

	e, err := Initialize(context.Background(), src, Options{})
	require.NoError(t, err)
	assert.Equal(t, len(entries)+1, e.HealthStats().EntryCount)

	srv := hashEmbeddings(t)
	defer srv.Close()
	dense, err := Initialize(context.Background(), src, Options{Preferred: openai.NewClient(openai.Config{BaseURL: srv.URL}, nil)})
	require.NoError(t, err)
	assert.Equal(t, domain.VariantDense, dense.Variant())
}

func TestLongQueryDegrades(t *testing.T) {
	rec := newRecorder()
	e := newEngine(t, Options{Metrics: rec})

	query := strings.Repeat("latex ", embedding.MaxQueryRunes/5)
	resp := e.Answer(context.Background(), query, "")
	assert.Equal(t, domain.TierLow, resp.ConfidenceLevel)
	assert.Equal(t, 1, rec.errors["encode"])

	_, err := e.Retrieve(context.Background(), query, 3)
	var encErr *domain.QueryEncodingError
	assert.ErrorAs(t, err, &encErr)
}

func TestKeywordsAreSearchable(t *testing.T) {
	e := newEngine(t, Options{})

	results, err := e.Retrieve(context.Background(), "coagulant", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pro-002", results[0].Entry.ID)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestSessionSuggestionsAvoidRecentEntries(t *testing.T) {
	e := newEngine(t, Options{Sessions: session.NewStore(0, 0)})
	ctx := context.Background()
	coryne := "What is Corynespora leaf fall disease?"

	plain := e.Answer(ctx, "Phytophthora leaf fall", "")
	require.Equal(t, domain.TierMedium, plain.ConfidenceLevel)
	require.Contains(t, plain.SuggestedTopics, coryne)

	first := e.Answer(ctx, "What is Corynespora leaf fall?", "s1")
	require.Equal(t, domain.TierHigh, first.ConfidenceLevel)

	second := e.Answer(ctx, "Phytophthora leaf fall", "s1")
	require.Equal(t, domain.TierMedium, second.ConfidenceLevel)
	assert.NotContains(t, second.SuggestedTopics, coryne)
	assert.NotEmpty(t, second.SuggestedTopics)

	other := e.Answer(ctx, "Phytophthora leaf fall", "s2")
	assert.Contains(t, other.SuggestedTopics, coryne)
}

func TestLowAnswersDoNotTouchSessionMemory(t *testing.T) {
	store := session.NewStore(0, 0)
	e := newEngine(t, Options{Sessions: store})

	e.Answer(context.Background(), "What's the weather in Paris tomorrow?", "s1")
	assert.Empty(t, store.Recent("s1"))

	e.Answer(context.Background(), "How do I measure DRC?", "s1")
	assert.Equal(t, []string{"ltx-001"}, store.Recent("s1"))
}

func TestEmptyCorpusIsFatal(t *testing.T) {
	_, err := Initialize(context.Background(), knowledge.BytesSource{Data: []byte(`[]`)}, Options{})
	assert.ErrorIs(t, err, domain.ErrEmptyCorpus)
}

func TestSchemaErrorIsFatal(t *testing.T) {
	src := knowledge.BytesSource{Data: []byte(`[{"id": "x", "category": "Nope", "question": "q", "answer": "a", "keywords": ["k"]}]`)}
	_, err := Initialize(context.Background(), src, Options{})
	var schemaErr *domain.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
}

func TestHealthAndTopics(t *testing.T) {
	rec := newRecorder()
	e := newEngine(t, Options{Metrics: rec})
	pos := corpusPositions(t)

	stats := e.HealthStats()
	assert.True(t, stats.Ready)
	assert.Equal(t, len(pos), stats.EntryCount)
	assert.Equal(t, domain.VariantSparse, stats.IndexVariant)
	assert.Equal(t, "tfidf", stats.Embedder)
	assert.Equal(t, len(pos), rec.entries)
	assert.Equal(t, domain.VariantSparse, rec.variant)

	topics := e.ListTopics()
	total := 0
	for _, qs := range topics {
		total += len(qs)
	}
	assert.Equal(t, len(pos), total)
	assert.Len(t, topics, 8)

	assert.Contains(t, e.Welcome().Reply, "topics")
}

// hashEmbeddings serves a bag of hashed words, so identical texts embed
// identically and share direction with overlapping texts.
func hashEmbeddings(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			v := make([]float32, 64)
			for _, word := range strings.Fields(strings.ToLower(text)) {
				h := fnv.New32a()
				_, _ = h.Write([]byte(word))
				v[h.Sum32()%64]++
			}
			data[i] = map[string]any{"index": i, "embedding": v}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func TestDenseVariant(t *testing.T) {
	srv := hashEmbeddings(t)
	defer srv.Close()

	dense := openai.NewClient(openai.Config{BaseURL: srv.URL, Model: "fake"}, nil)
	e := newEngine(t, Options{Preferred: dense})
	assert.Equal(t, domain.VariantDense, e.HealthStats().IndexVariant)
	assert.Equal(t, "openai:fake", e.HealthStats().Embedder)

	resp := e.Answer(context.Background(), "How to make ribbed smoked sheets?", "")
	assert.Equal(t, domain.TierHigh, resp.ConfidenceLevel)
	assert.Equal(t, "Processing", resp.Category)
	require.Len(t, resp.Sources, DefaultTopK)
	assert.Equal(t, "How to make ribbed smoked sheets?", resp.Sources[0].Question)
}

func TestDenseEncoderFailureAtQueryTime(t *testing.T) {
	srv := hashEmbeddings(t)
	rec := newRecorder()
	dense := openai.NewClient(openai.Config{BaseURL: srv.URL, MaxRetries: 0, Timeout: time.Second}, nil)
	e := newEngine(t, Options{Preferred: dense, Metrics: rec})
	require.Equal(t, domain.VariantDense, e.Variant())
	srv.Close()

	resp := e.Answer(context.Background(), "What is Corynespora leaf fall?", "s1")
	assert.Equal(t, domain.TierLow, resp.ConfidenceLevel)
	assert.Zero(t, resp.Confidence)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, domain.VariantDense, e.Variant())
	assert.Equal(t, domain.VariantDense, e.HealthStats().IndexVariant)
	assert.Equal(t, 1, rec.errors["encode"])
	assert.Equal(t, 1, rec.answers[domain.TierLow])
}

func TestFallsBackWhenDenseUnavailable(t *testing.T) {
	srv := hashEmbeddings(t)
	url := srv.URL
	srv.Close()

	dense := openai.NewClient(openai.Config{BaseURL: url, MaxRetries: 0, Timeout: time.Second}, nil)
	e := newEngine(t, Options{Preferred: dense})
	assert.Equal(t, domain.VariantSparse, e.HealthStats().IndexVariant)

	resp := e.Answer(context.Background(), "What is Corynespora leaf fall?", "")
	assert.Equal(t, domain.TierHigh, resp.ConfidenceLevel)
}

func TestResponseShapeIsVariantIndependent(t *testing.T) {
	srv := hashEmbeddings(t)
	defer srv.Close()

	sparse := newEngine(t, Options{})
	dense := newEngine(t, Options{Preferred: openai.NewClient(openai.Config{BaseURL: srv.URL}, nil)})

	keys := func(resp domain.ChatResponse) []string {
		raw, err := json.Marshal(resp)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		out := make([]string, 0, len(m))
		for k := range m {
			out = append(out, k)
		}
		return out
	}
	q := "How do I measure DRC?"
	assert.ElementsMatch(t, keys(sparse.Answer(context.Background(), q, "")), keys(dense.Answer(context.Background(), q, "")))
}

func TestConcurrentAnswers(t *testing.T) {
	e := newEngine(t, Options{Sessions: session.NewStore(0, 0)})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sid := "shared"
			if i%2 == 0 {
				sid = "other"
			}
			resp := e.Answer(context.Background(), "What is Corynespora leaf fall?", sid)
			assert.Equal(t, domain.TierHigh, resp.ConfidenceLevel)
		}(i)
	}
	wg.Wait()
}
