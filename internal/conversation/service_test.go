package conversation

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/internal/storage/sqlite"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newService(t *testing.T) (*Service, *clock) {
	t.Helper()
	db, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	clk := &clock{t: time.Date(2025, 11, 20, 8, 0, 0, 0, time.UTC)}
	return NewService(db, 72*time.Hour).WithClock(clk.now), clk
}

func exchange(q, a string) []models.Message {
	return []models.Message{
		{Role: models.RoleUser, Content: q},
		{Role: models.RoleAssistant, Content: a},
	}
}

func TestGetOrCreate_GeneratesIDAndTitle(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	question := strings.Repeat("Tồn kho áo thun ", 10)
	conv, err := s.GetOrCreate(ctx, "u1", "", question)
	require.NoError(t, err)

	assert.NotEmpty(t, conv.ConversationID)
	assert.Equal(t, TitleMaxRunes, len([]rune(conv.Title)))

	again, err := s.GetOrCreate(ctx, "u1", conv.ConversationID, "câu hỏi khác")
	require.NoError(t, err)
	assert.Equal(t, conv.Title, again.Title)
}

func TestGetOrCreate_SlidesExpiry(t *testing.T) {
	s, clk := newService(t)
	ctx := context.Background()

	conv, err := s.GetOrCreate(ctx, "u1", "c1", "q")
	require.NoError(t, err)
	assert.True(t, conv.ExpireAt.Equal(clk.t.Add(72*time.Hour)))

	clk.t = clk.t.Add(time.Hour)
	conv, err = s.GetOrCreate(ctx, "u1", "c1", "q")
	require.NoError(t, err)
	assert.True(t, conv.ExpireAt.Equal(clk.t.Add(72*time.Hour)))
}

func TestAppendThenHistory_RoundTrip(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	conv, err := s.GetOrCreate(ctx, "u1", "c1", "q1")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, conv, exchange("q1", "a1")...))
	require.NoError(t, s.Append(ctx, conv, exchange("q2", "a2")...))

	page, err := s.History(ctx, "u1", "c1", 3, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, "a1", page.Messages[0].Content)
	assert.Equal(t, "q2", page.Messages[1].Content)
	assert.Equal(t, "a2", page.Messages[2].Content)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, 1, *page.NextCursor)

	older, err := s.History(ctx, "u1", "c1", 3, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, older.Messages, 1)
	assert.Equal(t, "q1", older.Messages[0].Content)
	assert.Nil(t, older.NextCursor)
}

func TestPaginate(t *testing.T) {
	var msgs []models.Message
	for i := 0; i < 7; i++ {
		msgs = append(msgs, models.Message{Content: fmt.Sprint(i)})
	}
	cursor := func(i int) *int { return &i }

	tests := []struct {
		name      string
		limit     int
		cursor    *int
		wantFirst string
		wantLen   int
		wantNext  *int
	}{
		{"tail", 3, nil, "4", 3, cursor(4)},
		{"middle", 3, cursor(4), "1", 3, cursor(1)},
		{"reaches start", 3, cursor(2), "0", 2, nil},
		{"cursor past end", 10, cursor(99), "0", 7, nil},
		{"cursor zero", 3, cursor(0), "", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := Paginate(msgs, tt.limit, tt.cursor)
			assert.Len(t, page.Messages, tt.wantLen)
			assert.Equal(t, 7, page.Total)
			if tt.wantLen > 0 {
				assert.Equal(t, tt.wantFirst, page.Messages[0].Content)
			}
			assert.Equal(t, tt.wantNext, page.NextCursor)
		})
	}
}

func TestClear_IsIdempotent(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	conv, err := s.GetOrCreate(ctx, "u1", "c1", "q1")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, conv, exchange("q1", "a1")...))

	for i := 0; i < 2; i++ {
		require.NoError(t, s.Clear(ctx, "u1", "c1"))
		page, err := s.History(ctx, "u1", "c1", 10, nil)
		require.NoError(t, err)
		assert.Empty(t, page.Messages)
	}

	assert.ErrorIs(t, s.Clear(ctx, "u1", "missing"), models.ErrNotFound)
}

func TestHistory_NotFoundForOtherUser(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "u1", "c1", "q1")
	require.NoError(t, err)

	_, err = s.History(ctx, "u2", "c1", 10, nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "u2", "c1"), models.ErrNotFound)
}

func TestSweepExpired(t *testing.T) {
	s, clk := newService(t)
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "u1", "old", "q")
	require.NoError(t, err)
	clk.t = clk.t.Add(48 * time.Hour)
	_, err = s.GetOrCreate(ctx, "u1", "fresh", "q")
	require.NoError(t, err)

	clk.t = clk.t.Add(25 * time.Hour)
	list, err := s.ListByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fresh", list[0].ConversationID)

	n, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	s, _ := newService(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.RunSweeper(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRecentMessages(t *testing.T) {
	conv := &models.Conversation{Messages: exchange("q1", "a1")}
	conv.Messages = append(conv.Messages, exchange("q2", "a2")...)

	assert.Len(t, RecentMessages(conv, 10), 4)
	recent := RecentMessages(conv, 2)
	require.Len(t, recent, 2)
	assert.Equal(t, "q2", recent[0].Content)
}
