package facts

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/stockdesk/backend/internal/extract"
	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/logger"
)

// compositionFact passes when no combo matches, so a product-shaped
// question still gets an inventory answer.
func (a *Assembler) compositionFact(ctx context.Context, question string) (*Fact, error) {
	name := extract.ExtractProductName(question)
	if name == "" {
		return nil, nil
	}

	combo, err := a.catalog.FindComboByName(ctx, name)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(combo.Items))
	for _, ci := range combo.Items {
		ids = append(ids, ci.ItemID)
	}
	found, err := a.catalog.FindItemsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.InventoryItem, len(found))
	for _, it := range found {
		byID[it.ID] = it
	}

	// A component whose item was deleted is left out rather than shown blank.
	items := make([]ComponentItem, 0, len(combo.Items))
	for _, ci := range combo.Items {
		it, ok := byID[ci.ItemID]
		if !ok {
			logger.Warn("Combo component item missing",
				zap.String("combo", combo.Name),
				zap.String("item_id", ci.ItemID),
			)
			continue
		}
		items = append(items, ComponentItem{Code: it.Code, Name: it.Name, Quantity: ci.Quantity})
	}

	count := len(items)
	return &Fact{
		Type:      TypeProduct,
		Found:     true,
		Name:      combo.Name,
		ItemCount: &count,
		Items:     items,
	}, nil
}
