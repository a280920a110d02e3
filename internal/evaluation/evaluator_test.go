package evaluation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockdesk/backend/internal/facts"
	"github.com/stockdesk/backend/internal/storage/models"
)

type mapRouter map[string]models.Domain

func (m mapRouter) Route(_ context.Context, q string) models.RoutingDecision {
	if d, ok := m[q]; ok {
		return models.RoutingDecision{Domain: d, Confidence: 1}
	}
	return models.RoutingDecision{Domain: models.DomainUnknown}
}

type stubBuilder struct{}

func (stubBuilder) Build(_ context.Context, domain models.Domain, q string) (*facts.Fact, error) {
	switch {
	case strings.Contains(q, "lỗi"):
		return nil, errors.New("catalog offline")
	case domain == models.DomainInventory:
		return &facts.Fact{Type: facts.TypeInventory, Found: true}, nil
	case domain == models.DomainMovement:
		return &facts.Fact{Type: facts.TypeMovement, Found: false}, nil
	default:
		return &facts.Fact{Type: facts.TypeUnknown}, nil
	}
}

func TestRunDatasetEvaluation(t *testing.T) {
	dataset, err := LoadDatasetFromJSON([]byte(`{"items":[
		{"question":"Mã A1 còn bao nhiêu?","expectedDomain":"inventory","expectedFactType":"inventory","expectedFound":true},
		{"question":"Lịch sử nhập A1","expectedDomain":"movement","expectedFound":true},
		{"question":"Thời tiết?","expectedDomain":"unknown"},
		{"question":"lỗi kho","expectedDomain":"inventory"}
	]}`))
	require.NoError(t, err)

	router := mapRouter{
		"Mã A1 còn bao nhiêu?": models.DomainInventory,
		"Lịch sử nhập A1":      models.DomainMovement,
		"lỗi kho":              models.DomainInventory,
	}

	report, err := NewEvaluator(router, stubBuilder{}).RunDatasetEvaluation(context.Background(), dataset)
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalQuestions)
	assert.Equal(t, 2, report.PassedCount)
	assert.Equal(t, 4, report.DomainMatches)
	assert.Equal(t, 1, report.ErrorCount)
	assert.Equal(t, 2, report.PerDomain[models.DomainInventory])
	require.Len(t, report.Failures, 2)
	assert.Equal(t, "Lịch sử nhập A1", report.Failures[0].Question)
	assert.False(t, report.Failures[0].FoundOK)
	assert.InDelta(t, 50.0, report.PassPercentage, 1e-9)

	text := GenerateReport(report)
	assert.Contains(t, text, "Passed: 2 (50.0%)")
	assert.Contains(t, text, "catalog offline")
}

func TestLoadDatasetFromJSON_Rejects(t *testing.T) {
	_, err := LoadDatasetFromJSON([]byte(`{"items":[{"question":"  "}]}`))
	assert.Error(t, err)

	_, err = LoadDatasetFromJSON([]byte(`{"items":[{"question":"q","expectedDomain":"billing"}]}`))
	assert.Error(t, err)

	_, err = LoadDatasetFromJSON([]byte(`{`))
	assert.Error(t, err)
}
