package comments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    []string
		wantErr error
	}{
		{"plain array", `["666", "主播好"]`, []string{"666", "主播好"}, nil},
		{"fenced", "```json\n[\"a\", \"b\"]\n```", []string{"a", "b"}, nil},
		{"blank lines dropped", `[" ", "x", ""]`, []string{"x"}, nil},
		{"empty text", "   ", nil, ErrEmptyResponse},
		{"empty array", `[]`, nil, ErrEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse(`{"comments": 1}`)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyResponse)
}

func TestCleanCaps(t *testing.T) {
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = strings.Repeat("哈", 100)
	}
	got, err := Clean(lines)
	require.NoError(t, err)
	assert.Len(t, got, MaxLines)
	assert.Equal(t, MaxRunes, len([]rune(got[0])))
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		want []string
	}{
		{"passes through", SourceFunc(func(context.Context, string) ([]string, error) { return []string{"hi"}, nil }), []string{"hi"}},
		{"service error", SourceFunc(func(context.Context, string) ([]string, error) { return nil, errors.New("boom") }), ErrorFallback},
		{"empty response", SourceFunc(func(context.Context, string) ([]string, error) { return nil, ErrEmptyResponse }), EmptyFallback},
		{"only blanks", SourceFunc(func(context.Context, string) ([]string, error) { return []string{" "}, nil }), EmptyFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WithFallback(tt.src, nil).Generate(context.Background(), "hello")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFallbackLogsFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	src := SourceFunc(func(context.Context, string) ([]string, error) { return nil, errors.New("quota") })
	_, _ = WithFallback(src, zap.New(core)).Generate(context.Background(), "hello")
	require.Equal(t, 1, logs.FilterMessage("comment service failed, using fallback").Len())
}

func TestFallbackReturnsCopy(t *testing.T) {
	src := SourceFunc(func(context.Context, string) ([]string, error) { return nil, errors.New("x") })
	got, _ := WithFallback(src, nil).Generate(context.Background(), "")
	got[0] = "changed"
	assert.Equal(t, "666", ErrorFallback[0])
}

type seqRand struct{ n int }

func (r *seqRand) Float64() float64 { return 0 }
func (r *seqRand) IntN(n int) int {
	r.n++
	return r.n % n
}

func TestCanned(t *testing.T) {
	c := NewCanned(&seqRand{})
	lines, err := c.Generate(context.Background(), "欢迎大家，记得点赞")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(lines), 5)
	assert.LessOrEqual(t, len(lines), 8)
	assert.Equal(t, "主播好", lines[0])
	assert.Equal(t, "已赞", lines[1])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Generate(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

type memKV struct {
	data   map[string]string
	getErr error
	sets   int
}

func (m *memKV) Get(_ context.Context, key string) *redis.StringCmd {
	if m.getErr != nil {
		return redis.NewStringResult("", m.getErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memKV) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	m.sets++
	m.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func TestCacheServesRepeatPrompts(t *testing.T) {
	calls := 0
	src := SourceFunc(func(context.Context, string) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	})
	kv := &memKV{data: map[string]string{}}
	c := NewCache(src, kv, time.Minute, nil)

	for i := 0; i < 3; i++ {
		got, err := c.Generate(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, got)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, kv.sets)

	_, _ = c.Generate(context.Background(), "other")
	assert.Equal(t, 2, calls)
}

func TestCacheDegradesOnRedisError(t *testing.T) {
	calls := 0
	src := SourceFunc(func(context.Context, string) ([]string, error) {
		calls++
		return []string{"a"}, nil
	})
	kv := &memKV{data: map[string]string{}, getErr: errors.New("connection refused")}
	got, err := NewCache(src, kv, time.Minute, nil).Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, calls)
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	src := SourceFunc(func(context.Context, string) ([]string, error) { return nil, errors.New("boom") })
	kv := &memKV{data: map[string]string{}}
	_, err := NewCache(src, kv, time.Minute, nil).Generate(context.Background(), "hello")
	require.Error(t, err)
	assert.Zero(t, kv.sets)
}
