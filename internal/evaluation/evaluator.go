package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/facts"
	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/logger"
)

type Router interface {
	Route(ctx context.Context, question string) models.RoutingDecision
}

type FactBuilder interface {
	Build(ctx context.Context, domain models.Domain, question string) (*facts.Fact, error)
}

// Evaluator replays a labelled question set through routing and fact
// assembly. The model is never asked to answer, so a run only costs the
// classifier calls for questions no rule settles.
type Evaluator struct {
	router Router
	facts  FactBuilder
}

type EvaluationDataset struct {
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Question         string         `json:"question"`
	ExpectedDomain   models.Domain  `json:"expectedDomain"`
	ExpectedFactType facts.FactType `json:"expectedFactType,omitempty"`
	ExpectedFound    *bool          `json:"expectedFound,omitempty"`
}

type ItemResult struct {
	Question   string         `json:"question"`
	Domain     models.Domain  `json:"domain"`
	FactType   facts.FactType `json:"factType"`
	Found      bool           `json:"found"`
	DomainOK   bool           `json:"domainOk"`
	FactTypeOK bool           `json:"factTypeOk"`
	FoundOK    bool           `json:"foundOk"`
	Error      string         `json:"error,omitempty"`
}

func (r ItemResult) Passed() bool {
	return r.Error == "" && r.DomainOK && r.FactTypeOK && r.FoundOK
}

type EvaluationReport struct {
	TotalQuestions   int
	PassedCount      int
	DomainMatches    int
	FactTypeMatches  int
	FoundMatches     int
	ErrorCount       int
	PerDomain        map[models.Domain]int
	Failures         []ItemResult
	PassPercentage   float64
	DomainAccuracy   float64
	FactTypeAccuracy float64
}

func NewEvaluator(router Router, builder FactBuilder) *Evaluator {
	return &Evaluator{
		router: router,
		facts:  builder,
	}
}

func (e *Evaluator) EvaluateItem(ctx context.Context, item DatasetItem) ItemResult {
	decision := e.router.Route(ctx, item.Question)
	result := ItemResult{
		Question: item.Question,
		Domain:   decision.Domain,
		DomainOK: item.ExpectedDomain == "" || decision.Domain == item.ExpectedDomain,
	}

	fact, err := e.facts.Build(ctx, decision.Domain, item.Question)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.FactType = fact.Type
	result.Found = fact.Found
	result.FactTypeOK = item.ExpectedFactType == "" || fact.Type == item.ExpectedFactType
	result.FoundOK = item.ExpectedFound == nil || fact.Found == *item.ExpectedFound
	return result
}

func (e *Evaluator) RunDatasetEvaluation(ctx context.Context, dataset *EvaluationDataset) (*EvaluationReport, error) {
	logger.Info("Running grounding evaluation", zap.Int("items", len(dataset.Items)))

	report := &EvaluationReport{
		TotalQuestions: len(dataset.Items),
		PerDomain:      make(map[models.Domain]int),
	}

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result := e.EvaluateItem(ctx, item)
		report.PerDomain[result.Domain]++

		if result.Error != "" {
			report.ErrorCount++
			logger.Warn("Evaluation item failed", zap.Int("index", i), zap.String("error", result.Error))
		}
		if result.DomainOK {
			report.DomainMatches++
		}
		if result.FactTypeOK {
			report.FactTypeMatches++
		}
		if result.FoundOK {
			report.FoundMatches++
		}
		if result.Passed() {
			report.PassedCount++
		} else {
			report.Failures = append(report.Failures, result)
		}
	}

	if report.TotalQuestions > 0 {
		total := float64(report.TotalQuestions)
		report.PassPercentage = float64(report.PassedCount) / total * 100
		report.DomainAccuracy = float64(report.DomainMatches) / total * 100
		report.FactTypeAccuracy = float64(report.FactTypeMatches) / total * 100
	}

	logger.Info("Grounding evaluation completed",
		zap.Int("total", report.TotalQuestions),
		zap.Int("passed", report.PassedCount),
		zap.Int("errors", report.ErrorCount),
	)

	return report, nil
}

func LoadDatasetFromJSON(data []byte) (*EvaluationDataset, error) {
	var dataset EvaluationDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	for i, item := range dataset.Items {
		if strings.TrimSpace(item.Question) == "" {
			return nil, fmt.Errorf("dataset item %d has no question", i)
		}
		if item.ExpectedDomain != "" {
			if _, ok := models.ParseDomain(string(item.ExpectedDomain)); !ok && item.ExpectedDomain != models.DomainUnknown {
				return nil, fmt.Errorf("dataset item %d: unknown domain %q", i, item.ExpectedDomain)
			}
		}
	}
	return &dataset, nil
}

func GenerateReport(report *EvaluationReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, `
Grounding Evaluation Report
===========================

Total Questions: %d
Passed: %d (%.1f%%)
Errors: %d

Accuracy:
- Domain: %.1f%%
- Fact type: %.1f%%

Routed domains:
`,
		report.TotalQuestions,
		report.PassedCount, report.PassPercentage,
		report.ErrorCount,
		report.DomainAccuracy,
		report.FactTypeAccuracy,
	)

	domains := make([]string, 0, len(report.PerDomain))
	for d := range report.PerDomain {
		domains = append(domains, string(d))
	}
	sort.Strings(domains)
	for _, d := range domains {
		fmt.Fprintf(&b, "- %s: %d\n", d, report.PerDomain[models.Domain(d)])
	}

	if len(report.Failures) > 0 {
		b.WriteString("\nFailures:\n")
		for _, f := range report.Failures {
			fmt.Fprintf(&b, "- %q routed=%s fact=%s found=%t", f.Question, f.Domain, f.FactType, f.Found)
			if f.Error != "" {
				fmt.Fprintf(&b, " error=%s", f.Error)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
