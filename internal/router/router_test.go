package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stockdesk/backend/internal/llm"
	"github.com/stockdesk/backend/internal/storage/models"
)

type fakeCompleter struct {
	content string
	err     error
	calls   int
}

func (f *fakeCompleter) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content}, nil
}

type memoryCache struct {
	entries map[string]models.RoutingDecision
	err     error
}

func (m *memoryCache) GetDecision(_ context.Context, hash string) (*models.RoutingDecision, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	d, ok := m.entries[hash]
	if !ok {
		return nil, false, nil
	}
	return &d, true, nil
}

func (m *memoryCache) SetDecision(_ context.Context, hash string, d models.RoutingDecision, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.entries[hash] = d
	return nil
}

func TestRoute_Rules(t *testing.T) {
	tests := []struct {
		question string
		want     models.Domain
	}{
		{"Cho tôi xem lịch sử nhập kho mã ABC123", models.DomainMovement},
		{"lich su nhap kho", models.DomainMovement},
		{"Nhật ký xuất hàng tuần này", models.DomainMovement},
		{"Xuất kho áo thun từ 20/11/2025 đến 20/12/2025", models.DomainMovement},
		{"đã nhập bao nhiêu áo thun tháng này", models.DomainMovement},
		{"San pham Combo A gom nhung item nao?", models.DomainComposition},
		{"combo Tết gồm những gì", models.DomainComposition},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			fc := &fakeCompleter{}
			r := NewRouter(fc, 0.6)

			got := r.Route(context.Background(), tt.question)
			assert.Equal(t, tt.want, got.Domain)
			assert.Equal(t, 1.0, got.Confidence)
			assert.Zero(t, fc.calls)
		})
	}
}

func TestRoute_Classifier(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
		want    models.RoutingDecision
	}{
		{"strict json", `{"source":"inventory","confidence":0.9}`, nil, models.RoutingDecision{Domain: models.DomainInventory, Confidence: 0.9}},
		{"json in prose", `Đây là kết quả: {"source": "movement", "confidence": 0.75}`, nil, models.RoutingDecision{Domain: models.DomainMovement, Confidence: 0.75}},
		{"below threshold", `{"source":"inventory","confidence":0.4}`, nil, unknown},
		{"unknown source", `{"source":"income","confidence":0.95}`, nil, unknown},
		{"garbage", `tôi không chắc`, nil, unknown},
		{"gateway error", "", llm.ErrModelUnavailable, unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCompleter{content: tt.content, err: tt.err}
			r := NewRouter(fc, 0.6)

			got := r.Route(context.Background(), "Mã ABC123 còn bao nhiêu?")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, fc.calls)
		})
	}
}

func TestRoute_CachesClassifierDecisions(t *testing.T) {
	fc := &fakeCompleter{content: `{"source":"inventory","confidence":0.8}`}
	cache := &memoryCache{entries: map[string]models.RoutingDecision{}}
	r := NewRouter(fc, 0.6, WithCache(cache, time.Hour))

	first := r.Route(context.Background(), "Mã ABC123 còn bao nhiêu?")
	second := r.Route(context.Background(), "  mã abc123   CÒN bao nhiêu? ")

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fc.calls)
	assert.Len(t, cache.entries, 1)
}

func TestRoute_CacheErrorsAreIgnored(t *testing.T) {
	fc := &fakeCompleter{content: `{"source":"inventory","confidence":0.8}`}
	cache := &memoryCache{err: errors.New("redis down")}
	r := NewRouter(fc, 0.6, WithCache(cache, time.Hour))

	got := r.Route(context.Background(), "Mã ABC123 còn bao nhiêu?")
	assert.Equal(t, models.DomainInventory, got.Domain)
}

func TestRoute_UnknownIsNotCached(t *testing.T) {
	fc := &fakeCompleter{content: `{"source":"unknown","confidence":0}`}
	cache := &memoryCache{entries: map[string]models.RoutingDecision{}}
	r := NewRouter(fc, 0.6, WithCache(cache, time.Hour))

	r.Route(context.Background(), "Hôm nay trời đẹp không?")
	r.Route(context.Background(), "Hôm nay trời đẹp không?")

	assert.Equal(t, 2, fc.calls)
	assert.Empty(t, cache.entries)
}
