package facts

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/extract"
	"github.com/stockdesk/backend/internal/metrics"
	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/logger"
)

// Catalog is the read-only view of the CRUD layer's data.
type Catalog interface {
	FindItemByCode(ctx context.Context, code string) (*models.InventoryItem, error)
	FindItemsByName(ctx context.Context, name string, limit int) ([]models.InventoryItem, error)
	FindItemsByIDs(ctx context.Context, ids []string) ([]models.InventoryItem, error)
	FindComboByName(ctx context.Context, name string) (*models.ProductCombo, error)
	SummarizeMovements(ctx context.Context, filter models.MovementFilter, sampleLimit int) (*models.MovementDigest, error)
}

type FactType string

const (
	TypeInventory FactType = "inventory"
	TypeProduct   FactType = "product"
	TypeMovement  FactType = "movement"
	TypeFormula   FactType = "formula"
	TypeUnknown   FactType = "unknown"
)

const (
	MaxCandidates    = 5
	MaxSamples       = 10
	MaxWidenMatches  = 20
	nameSearchLimit  = MaxCandidates
	widenSearchLimit = MaxWidenMatches + 1
)

type Candidate struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type ItemRef struct {
	ID                string          `json:"-"`
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	QuantityPerBox    int64           `json:"quantityPerBox"`
	ReceivedQuantity  models.Quantity `json:"receivedQuantity"`
	DeliveredQuantity models.Quantity `json:"deliveredQuantity"`
	RestQuantity      models.Quantity `json:"restQuantity"`
}

type Metrics struct {
	Boxes          int64           `json:"boxes"`
	Remainder      int64           `json:"remainder"`
	QuantityPerBox int64           `json:"quantityPerBox"`
	Rest           models.Quantity `json:"rest"`
	Received       models.Quantity `json:"received"`
	Delivered      models.Quantity `json:"delivered"`
}

type ComponentItem struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
}

type MovementSample struct {
	Date     string `json:"date"`
	Status   string `json:"status"`
	Quantity int64  `json:"quantity"`
	Note     string `json:"note,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

type MovementSummary struct {
	Status        string           `json:"status,omitempty"`
	From          string           `json:"from,omitempty"`
	To            string           `json:"to,omitempty"`
	TotalCount    int              `json:"totalCount"`
	TotalQuantity int64            `json:"totalQuantity"`
	Samples       []MovementSample `json:"samples"`
}

// Fact is the grounding payload serialized into the model prompt. Fields
// that do not apply to Type are omitted.
type Fact struct {
	Type            FactType         `json:"type"`
	Found           bool             `json:"found"`
	Query           string           `json:"query,omitempty"`
	Candidates      []Candidate      `json:"candidates,omitempty"`
	Item            *ItemRef         `json:"item,omitempty"`
	Metrics         *Metrics         `json:"metrics,omitempty"`
	RequestedMetric extract.Metric   `json:"requestedMetric,omitempty"`
	RequestedValue  any              `json:"requestedValue,omitempty"`
	Explanation     string           `json:"explanation,omitempty"`
	Formula         string           `json:"formula,omitempty"`
	Name            string           `json:"name,omitempty"`
	ItemCount       *int             `json:"itemCount,omitempty"`
	Items           []ComponentItem  `json:"items,omitempty"`
	MatchedItems    []Candidate      `json:"matchedItems,omitempty"`
	Movement        *MovementSummary `json:"movement,omitempty"`
}

// Step is one named strategy in a domain chain. A nil fact passes the
// question on to the next step.
type Step struct {
	Name  string
	Build func(ctx context.Context, question string) (*Fact, error)
}

type Assembler struct {
	catalog Catalog
}

func NewAssembler(catalog Catalog) *Assembler {
	return &Assembler{catalog: catalog}
}

// Chain returns the ordered strategies for a domain.
func (a *Assembler) Chain(domain models.Domain) []Step {
	inventory := []Step{
		{Name: "formula", Build: a.formulaFact},
		{Name: "inventory", Build: a.inventoryFact},
		{Name: "inventory_empty", Build: emptyFact(TypeInventory)},
	}

	switch domain {
	case models.DomainInventory:
		return inventory
	case models.DomainComposition:
		return append([]Step{{Name: "composition", Build: a.compositionFact}}, inventory...)
	case models.DomainMovement:
		return []Step{{Name: "movement", Build: a.movementFact}}
	default:
		return []Step{{Name: "unknown", Build: emptyFact(TypeUnknown)}}
	}
}

// Build assembles the fact for the routed domain. Errors are storage
// failures only; missing data is a fact with Found false.
func (a *Assembler) Build(ctx context.Context, domain models.Domain, question string) (*Fact, error) {
	for _, step := range a.Chain(domain) {
		fact, err := step.Build(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("fact step %s: %w", step.Name, err)
		}
		if fact == nil {
			continue
		}
		logger.Debug("Fact assembled",
			zap.String("domain", string(domain)),
			zap.String("step", step.Name),
			zap.Bool("found", fact.Found),
		)
		metrics.FactsFound.WithLabelValues(string(fact.Type), strconv.FormatBool(fact.Found)).Inc()
		return fact, nil
	}
	return &Fact{Type: TypeUnknown}, nil
}

func emptyFact(t FactType) func(context.Context, string) (*Fact, error) {
	return func(context.Context, string) (*Fact, error) {
		return &Fact{Type: t, Found: false}, nil
	}
}

func candidatesOf(items []models.InventoryItem) []Candidate {
	n := len(items)
	if n > MaxCandidates {
		n = MaxCandidates
	}
	out := make([]Candidate, 0, n)
	for _, it := range items[:n] {
		out = append(out, Candidate{Code: it.Code, Name: it.Name})
	}
	return out
}

func refOf(item *models.InventoryItem) *ItemRef {
	return &ItemRef{
		ID:                item.ID,
		Code:              item.Code,
		Name:              item.Name,
		QuantityPerBox:    item.QuantityPerBox,
		ReceivedQuantity:  item.ReceivedQuantity,
		DeliveredQuantity: item.DeliveredQuantity,
		RestQuantity:      item.RestQuantity,
	}
}
