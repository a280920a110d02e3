package facts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockdesk/backend/internal/storage/models"
)

func day(d int) time.Time {
	return time.Date(2025, 11, d, 9, 0, 0, 0, time.UTC)
}

func TestBuildMovementFilter_DateRangeAndStatus(t *testing.T) {
	filter := BuildMovementFilter("Lịch sử xuất kho mã ABC123 từ 20/11/2025 đến 20/12/2025", []string{"i1"})

	assert.Equal(t, models.StatusDelivered, filter.Status)
	require.NotNil(t, filter.Date)
	assert.Equal(t, time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC), filter.Date.Gte)
	assert.Equal(t, time.Date(2025, 12, 20, 23, 59, 59, 999_000_000, time.UTC), filter.Date.Lte)
	assert.Equal(t, []string{"i1"}, filter.ItemIDs)
}

func TestSummarize_AttributesOnlyMatchedItems(t *testing.T) {
	samples := []models.MovementLog{
		{ID: "m1", Item: &models.MovementItem{ItemID: "i1", Quantity: 5}, Status: models.StatusReceived, Date: day(1)},
		{ID: "m2", Items: []models.MovementItem{{ItemID: "i1", Quantity: 3}, {ItemID: "i9", Quantity: 100}}, Status: models.StatusDelivered, Date: day(3)},
		{ID: "m3", Items: []models.MovementItem{{ItemID: "i2", Quantity: 4}}, Status: models.StatusDelivered, Date: day(2)},
	}

	s := Summarize(&models.MovementDigest{TotalCount: 3, TotalQuantity: 12, Samples: samples}, []string{"i1", "i2"})

	assert.Equal(t, 3, s.TotalCount)
	assert.Equal(t, int64(12), s.TotalQuantity)
	require.Len(t, s.Samples, 3)
	assert.Equal(t, int64(3), s.Samples[0].Quantity)
	assert.Equal(t, int64(4), s.Samples[1].Quantity)
	assert.Equal(t, int64(5), s.Samples[2].Quantity)
}

func TestSummarize_TotalsComeFromAggregate(t *testing.T) {
	var samples []models.MovementLog
	for i := 15; i >= 6; i-- {
		samples = append(samples, models.MovementLog{
			ID:     fmt.Sprintf("m%d", i),
			Item:   &models.MovementItem{ItemID: "i1", Quantity: 1},
			Status: models.StatusReceived,
			Date:   day(i),
		})
	}

	s := Summarize(&models.MovementDigest{TotalCount: 50000, TotalQuantity: 123456, Samples: samples}, []string{"i1"})
	assert.Equal(t, 50000, s.TotalCount)
	assert.Equal(t, int64(123456), s.TotalQuantity)
	require.Len(t, s.Samples, MaxSamples)
	assert.Equal(t, day(15).Format(time.RFC3339), s.Samples[0].Date)
}

func TestSummarize_NilDigest(t *testing.T) {
	s := Summarize(nil, []string{"i1"})
	assert.Zero(t, s.TotalCount)
	assert.NotNil(t, s.Samples)
}

func TestBuild_MovementAsksForSampleLimit(t *testing.T) {
	cat := sampleCatalog()
	for i := 1; i <= 15; i++ {
		cat.movements = append(cat.movements, models.MovementLog{
			ID:     fmt.Sprintf("m%d", i),
			Item:   &models.MovementItem{ItemID: "i1", Quantity: 2},
			Status: models.StatusReceived,
			Date:   day(i),
		})
	}
	a := NewAssembler(cat)

	fact, err := a.Build(context.Background(), models.DomainMovement, "lịch sử nhập kho mã ABC123")
	require.NoError(t, err)
	require.NotNil(t, fact.Movement)
	assert.Equal(t, 15, fact.Movement.TotalCount)
	assert.Equal(t, int64(30), fact.Movement.TotalQuantity)
	assert.Len(t, fact.Movement.Samples, MaxSamples)
}

func TestWidenByName_ShortensUntilMatch(t *testing.T) {
	a := NewAssembler(sampleCatalog())

	items, err := a.WidenByName(context.Background(), "Áo thun trắng size XL")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ABC123", items[0].Code)

	items, err = a.WidenByName(context.Background(), "Quần jean")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestWidenByName_RejectsTooManyMatches(t *testing.T) {
	cat := &fakeCatalog{}
	for i := 0; i < MaxWidenMatches+5; i++ {
		cat.items = append(cat.items, models.InventoryItem{ID: fmt.Sprint(i), Code: fmt.Sprintf("C%03d", i), Name: "Áo mẫu"})
	}
	a := NewAssembler(cat)

	items, err := a.WidenByName(context.Background(), "Áo")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestBuild_MovementByCode(t *testing.T) {
	cat := sampleCatalog()
	cat.movements = []models.MovementLog{
		{ID: "m1", Item: &models.MovementItem{ItemID: "i1", Quantity: 5}, Status: models.StatusDelivered, Date: time.Date(2025, 11, 25, 0, 0, 0, 0, time.UTC)},
		{ID: "m2", Items: []models.MovementItem{{ItemID: "i1", Quantity: 3}, {ItemID: "i3", Quantity: 9}}, Status: models.StatusDelivered, Date: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "m3", Item: &models.MovementItem{ItemID: "i1", Quantity: 50}, Status: models.StatusReceived, Date: time.Date(2025, 11, 21, 0, 0, 0, 0, time.UTC)},
		{ID: "m4", Item: &models.MovementItem{ItemID: "i1", Quantity: 70}, Status: models.StatusDelivered, Date: time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)},
	}
	a := NewAssembler(cat)

	fact, err := a.Build(context.Background(), models.DomainMovement,
		"Lịch sử xuất kho mã ABC123 từ 20/11/2025 đến 20/12/2025")
	require.NoError(t, err)

	assert.Equal(t, TypeMovement, fact.Type)
	assert.True(t, fact.Found)
	require.NotNil(t, fact.Movement)
	assert.Equal(t, 2, fact.Movement.TotalCount)
	assert.Equal(t, int64(8), fact.Movement.TotalQuantity)
	assert.Equal(t, models.StatusDelivered, fact.Movement.Status)
	assert.Equal(t, []Candidate{{Code: "ABC123", Name: "Áo thun trắng"}}, fact.MatchedItems)
}

func TestBuild_MovementCodeMissFallsBackToAltName(t *testing.T) {
	cat := sampleCatalog()
	cat.movements = []models.MovementLog{
		{ID: "m1", Item: &models.MovementItem{ItemID: "i3", Quantity: 6}, Status: models.StatusReceived, Date: day(2)},
	}
	a := NewAssembler(cat)

	fact, err := a.Build(context.Background(), models.DomainMovement, "Lịch sử nhập mã ZZZ999 của bình giữ nhiệt")
	require.NoError(t, err)
	assert.True(t, fact.Found)
	assert.Equal(t, []Candidate{{Code: "BT001", Name: "Bình giữ nhiệt"}}, fact.MatchedItems)
	assert.Equal(t, int64(6), fact.Movement.TotalQuantity)
	require.Len(t, cat.filters, 1)
	assert.Equal(t, []string{"i3"}, cat.filters[0].ItemIDs)
}

func TestBuild_MovementUnresolved(t *testing.T) {
	a := NewAssembler(sampleCatalog())

	fact, err := a.Build(context.Background(), models.DomainMovement, "lịch sử nhập kho mã ZZZ999")
	require.NoError(t, err)
	assert.False(t, fact.Found)
	assert.Equal(t, "ZZZ999", fact.Query)
}
