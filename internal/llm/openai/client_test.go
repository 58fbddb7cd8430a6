package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/people-extractor/internal/common"
	"github.com/joseph-ayodele/people-extractor/internal/llm"
)

// scripted answers each chat completion with reply(attempt, userPrompt).
type scripted struct {
	attempts atomic.Int32
	reply    func(attempt int, prompt string) (int, string)
}

func (s *scripted) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(s.attempts.Add(1))
	var body struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	prompt := ""
	if len(body.Messages) > 1 {
		prompt = body.Messages[1].Content
	}

	code, content := s.reply(n, prompt)
	w.WriteHeader(code)
	if code != http.StatusOK {
		_, _ = w.Write([]byte(`{"error":{"message":"` + content + `"}}`))
		return
	}
	out, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	_, _ = w.Write(out)
}

func newTestClient(t *testing.T, s *scripted, mutate func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	cfg := Config{
		APIKey:          "test-key",
		BaseURL:         srv.URL,
		Timeout:         5 * time.Second,
		MaxRetries:      3,
		BaseDelay:       time.Millisecond,
		ChunkMaxRetries: 2,
		ChunkRetryDelay: time.Millisecond,
		InterChunkDelay: time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg, nil)
}

const janeJSON = `{"people":[{"name":"Jane Doe","email":"jane@x.com","position":"Engineer","company":"Acme"}],"confidence":0.9,"summary":"one"}`

func TestAnalyzeSingleChunk(t *testing.T) {
	s := &scripted{reply: func(int, string) (int, string) { return http.StatusOK, janeJSON }}
	c := newTestClient(t, s, nil)

	var partials []llm.Partial
	sink := llm.SinkFunc(func(_ context.Context, p llm.Partial) error {
		partials = append(partials, p)
		return nil
	})

	res, err := c.Analyze(context.Background(), llm.AnalysisRequest{
		Text:           "Jane Doe, jane@x.com, Engineer, Acme",
		ExtractionType: "contacts",
		Source:         "upload",
	}, sink)
	require.NoError(t, err)

	require.Len(t, res.People, 1)
	p := res.People[0]
	assert.Equal(t, "Jane Doe", p.Name)
	assert.Equal(t, "jane@x.com", p.Email)
	assert.Equal(t, "Engineer", p.Position)
	assert.Equal(t, "Acme", p.Company)
	assert.Equal(t, 0, p.ChunkIndex)
	assert.Equal(t, 1, p.TotalChunks)
	assert.Equal(t, 1, res.ProcessedChunks)
	assert.EqualValues(t, 1, s.attempts.Load())

	require.Len(t, partials, 1)
	assert.Equal(t, 1, partials[0].TotalChunks)
	assert.Len(t, partials[0].People, 1)
}

func TestAnalyzeSingleRetriesRateLimit(t *testing.T) {
	s := &scripted{reply: func(n int, _ string) (int, string) {
		if n <= 2 {
			return http.StatusTooManyRequests, "slow down"
		}
		return http.StatusOK, janeJSON
	}}
	c := newTestClient(t, s, nil)

	res, err := c.AnalyzeSingle(context.Background(), llm.AnalysisRequest{Text: "Jane Doe"})
	require.NoError(t, err)
	assert.Len(t, res.People, 1)
	assert.EqualValues(t, 3, s.attempts.Load())
}

func TestAnalyzeSingleExhaustion(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
		code     string
	}{
		{name: "server error", status: http.StatusInternalServerError, sentinel: common.ErrAIProvider, code: common.CodeAIProvider},
		{name: "rate limited", status: http.StatusTooManyRequests, sentinel: common.ErrRateLimited, code: common.CodeRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scripted{reply: func(int, string) (int, string) { return tt.status, "nope" }}
			c := newTestClient(t, s, func(cfg *Config) { cfg.MaxRetries = 2 })

			_, err := c.AnalyzeSingle(context.Background(), llm.AnalysisRequest{Text: "x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.ErrorIs(t, err, common.ErrAIProvider)

			var appErr *common.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.code, appErr.Code)
			assert.EqualValues(t, 3, s.attempts.Load())
		})
	}
}

func TestAnalyzeSingleNoRetries(t *testing.T) {
	s := &scripted{reply: func(int, string) (int, string) { return http.StatusBadGateway, "down" }}
	c := newTestClient(t, s, func(cfg *Config) { cfg.MaxRetries = -1 })

	_, err := c.AnalyzeSingle(context.Background(), llm.AnalysisRequest{Text: "x"})
	require.Error(t, err)
	assert.EqualValues(t, 1, s.attempts.Load())
}

func TestAnalyzeSingleUnparseableIsNotAnError(t *testing.T) {
	s := &scripted{reply: func(int, string) (int, string) { return http.StatusOK, "I found nobody, sorry." }}
	c := newTestClient(t, s, nil)

	res, err := c.AnalyzeSingle(context.Background(), llm.AnalysisRequest{Text: "x"})
	require.NoError(t, err)
	assert.Empty(t, res.People)
	assert.InDelta(t, 0.1, res.Confidence, 1e-9)
	assert.Equal(t, "parse failed", res.Summary)
	assert.EqualValues(t, 1, s.attempts.Load())
}

func TestAnalyzeSingleContextCancelled(t *testing.T) {
	s := &scripted{reply: func(int, string) (int, string) { return http.StatusInternalServerError, "boom" }}
	c := newTestClient(t, s, func(cfg *Config) { cfg.BaseDelay = time.Hour })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.AnalyzeSingle(ctx, llm.AnalysisRequest{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.EqualValues(t, 1, s.attempts.Load())
}

// threeChunkText yields exactly three chunks at ChunkSize 100.
func threeChunkText() string {
	line := func(tag string) string { return tag + strings.Repeat(".", 90-len(tag)) }
	return line("first") + "\n" + line("second") + "\n" + line("third")
}

func chunkedConfig(cfg *Config) {
	cfg.ChunkThreshold = 100
	cfg.ChunkSize = 100
}

func TestAnalyzeChunkedSkipsFailedChunk(t *testing.T) {
	var mu sync.Mutex
	perPart := map[string]int{}

	s := &scripted{reply: func(_ int, prompt string) (int, string) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.Contains(prompt, "Part 1 of 3"):
			perPart["1"]++
			return http.StatusOK, `{"people":[{"name":"Jane Doe","email":"jane@x.com"}],"confidence":0.9}`
		case strings.Contains(prompt, "Part 2 of 3"):
			perPart["2"]++
			return http.StatusInternalServerError, "boom"
		case strings.Contains(prompt, "Part 3 of 3"):
			perPart["3"]++
			return http.StatusOK, `{"people":[{"name":"Jane D.","email":"JANE@x.com"},{"name":"Bob","company":"Initech"}],"confidence":0.7}`
		}
		return http.StatusBadRequest, "unexpected prompt"
	}}
	c := newTestClient(t, s, chunkedConfig)

	var partials []llm.Partial
	sink := llm.SinkFunc(func(_ context.Context, p llm.Partial) error {
		partials = append(partials, p)
		return nil
	})

	res, err := c.Analyze(context.Background(), llm.AnalysisRequest{Text: threeChunkText()}, sink)
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalChunks)
	assert.Equal(t, 2, res.ProcessedChunks)
	assert.Equal(t, "processed 2/3 chunks, 2 people", res.Summary)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)

	require.Len(t, res.People, 2)
	assert.Equal(t, "Jane Doe", res.People[0].Name)
	assert.Equal(t, 0, res.People[0].ChunkIndex)
	assert.Equal(t, "Bob", res.People[1].Name)
	assert.Equal(t, 2, res.People[1].ChunkIndex)
	assert.Equal(t, 3, res.People[1].TotalChunks)

	assert.Equal(t, map[string]int{"1": 1, "2": 3, "3": 1}, perPart)

	require.Len(t, partials, 2)
	assert.Equal(t, 0, partials[0].ChunkIndex)
	assert.Equal(t, 2, partials[1].ChunkIndex)
	assert.Len(t, partials[1].People, 2)
}

func TestAnalyzeChunkedAllFail(t *testing.T) {
	s := &scripted{reply: func(int, string) (int, string) { return http.StatusServiceUnavailable, "down" }}
	c := newTestClient(t, s, func(cfg *Config) {
		chunkedConfig(cfg)
		cfg.ChunkMaxRetries = -1
	})

	_, err := c.Analyze(context.Background(), llm.AnalysisRequest{Text: threeChunkText()}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrAIProvider)
	assert.EqualValues(t, 3, s.attempts.Load())
}

func TestAnalyzeSinkErrorAborts(t *testing.T) {
	s := &scripted{reply: func(int, string) (int, string) { return http.StatusOK, janeJSON }}
	c := newTestClient(t, s, chunkedConfig)

	sinkErr := common.PersistenceErr("insert failed", nil)
	calls := 0
	sink := llm.SinkFunc(func(context.Context, llm.Partial) error {
		calls++
		return sinkErr
	})

	_, err := c.Analyze(context.Background(), llm.AnalysisRequest{Text: threeChunkText()}, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPersistence)
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 1, s.attempts.Load())
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{APIKey: "k"}, nil)
	assert.Equal(t, "gpt-4o-mini", c.cfg.Model)
	assert.Equal(t, 3, c.cfg.MaxRetries)
	assert.Equal(t, 10*time.Second, c.cfg.BaseDelay)
	assert.Equal(t, 2, c.cfg.ChunkMaxRetries)
	assert.Equal(t, 2*time.Second, c.cfg.ChunkRetryDelay)
	assert.Equal(t, 1500*time.Millisecond, c.cfg.InterChunkDelay)
	assert.Equal(t, 50_000, c.cfg.ChunkThreshold)
}
