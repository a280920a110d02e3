package facts

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/extract"
	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/logger"
)

// Resolver maps a question to inventory items. Nil items pass to the next resolver.
type Resolver struct {
	Name    string
	Resolve func(ctx context.Context, question string) ([]models.InventoryItem, error)
}

// Resolvers is the movement fallback chain: code, extracted name, alternate name.
func (a *Assembler) Resolvers() []Resolver {
	return []Resolver{
		{Name: "code", Resolve: a.resolveByCode},
		{Name: "name", Resolve: a.resolveByName},
		{Name: "alt_name", Resolve: a.resolveByAltName},
	}
}

func (a *Assembler) resolveByCode(ctx context.Context, question string) ([]models.InventoryItem, error) {
	lookup := extract.ExtractLookup(question)
	if lookup == nil || lookup.Kind != models.LookupCode {
		return nil, nil
	}
	item, err := a.catalog.FindItemByCode(ctx, lookup.Value)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []models.InventoryItem{*item}, nil
}

func (a *Assembler) resolveByName(ctx context.Context, question string) ([]models.InventoryItem, error) {
	lookup := extract.ExtractLookup(question)
	if lookup == nil || lookup.Kind != models.LookupName {
		return nil, nil
	}
	return a.WidenByName(ctx, lookup.Value)
}

func (a *Assembler) resolveByAltName(ctx context.Context, question string) ([]models.InventoryItem, error) {
	name := extract.ExtractAltName(question)
	if name == "" {
		return nil, nil
	}
	return a.WidenByName(ctx, name)
}

// WidenByName tries the full name and then shorter token prefixes, accepting
// the first attempt with between 1 and MaxWidenMatches matches.
func (a *Assembler) WidenByName(ctx context.Context, name string) ([]models.InventoryItem, error) {
	tokens := strings.Fields(name)
	for n := len(tokens); n >= 1; n-- {
		prefix := strings.Join(tokens[:n], " ")
		items, err := a.catalog.FindItemsByName(ctx, prefix, widenSearchLimit)
		if err != nil {
			return nil, err
		}
		if len(items) >= 1 && len(items) <= MaxWidenMatches {
			logger.Debug("Movement name resolved",
				zap.String("name", name),
				zap.String("prefix", prefix),
				zap.Int("matches", len(items)),
			)
			return items, nil
		}
	}
	return nil, nil
}

func (a *Assembler) movementFact(ctx context.Context, question string) (*Fact, error) {
	var items []models.InventoryItem
	for _, r := range a.Resolvers() {
		resolved, err := r.Resolve(ctx, question)
		if err != nil {
			return nil, err
		}
		if len(resolved) > 0 {
			items = resolved
			break
		}
	}

	if len(items) == 0 {
		fact := &Fact{Type: TypeMovement, Found: false}
		if lookup := extract.ExtractLookup(question); lookup != nil {
			fact.Query = lookup.Value
		}
		return fact, nil
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	filter := BuildMovementFilter(question, ids)

	digest, err := a.catalog.SummarizeMovements(ctx, filter, MaxSamples)
	if err != nil {
		return nil, err
	}

	summary := Summarize(digest, ids)
	summary.Status = filter.Status
	if filter.Date != nil {
		summary.From = filter.Date.Gte.Format(time.RFC3339)
		summary.To = filter.Date.Lte.Format(time.RFC3339Nano)
	}

	return &Fact{
		Type:         TypeMovement,
		Found:        true,
		MatchedItems: candidatesOf(items),
		Movement:     summary,
	}, nil
}

// BuildMovementFilter combines the resolved ids with the status and date
// range mentioned in the question.
func BuildMovementFilter(question string, itemIDs []string) models.MovementFilter {
	return models.MovementFilter{
		ItemIDs: itemIDs,
		Status:  extract.DetectStatus(question),
		Date:    extract.ExtractDateRange(question),
	}
}

// Summarize takes the totals from the digest and renders its samples, most
// recent first. A sample counts only quantities of the given items since one
// entry can also carry unrelated items.
func Summarize(digest *models.MovementDigest, itemIDs []string) *MovementSummary {
	summary := &MovementSummary{Samples: []MovementSample{}}
	if digest == nil {
		return summary
	}
	summary.TotalCount = digest.TotalCount
	summary.TotalQuantity = digest.TotalQuantity

	matched := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		matched[id] = true
	}

	sorted := make([]models.MovementLog, len(digest.Samples))
	copy(sorted, digest.Samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	if len(sorted) > MaxSamples {
		sorted = sorted[:MaxSamples]
	}

	for _, log := range sorted {
		summary.Samples = append(summary.Samples, MovementSample{
			Date:     log.Date.Format(time.RFC3339),
			Status:   log.Status,
			Quantity: attributedQuantity(log, matched),
			Note:     log.Note,
			Tag:      log.Tag,
		})
	}
	return summary
}

func attributedQuantity(log models.MovementLog, matched map[string]bool) int64 {
	var qty int64
	if log.Item != nil && matched[log.Item.ItemID] {
		qty += log.Item.Quantity
	}
	for _, it := range log.Items {
		if matched[it.ItemID] {
			qty += it.Quantity
		}
	}
	return qty
}
