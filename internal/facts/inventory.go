package facts

import (
	"context"
	"errors"
	"fmt"

	"github.com/stockdesk/backend/internal/extract"
	"github.com/stockdesk/backend/internal/storage/models"
)

const formulaText = "boxes = floor(rest / quantityPerBox); remainder = rest mod quantityPerBox; " +
	"khi quantityPerBox = 0 thì boxes = 0 và remainder = rest"

func (a *Assembler) formulaFact(_ context.Context, question string) (*Fact, error) {
	if extract.ExtractLookup(question) != nil || !extract.IsFormulaQuestion(question) {
		return nil, nil
	}
	return &Fact{
		Type:    TypeFormula,
		Found:   true,
		Formula: formulaText,
		Explanation: "Số thùng là phần nguyên của tồn kho chia cho quy cách mỗi thùng, " +
			"số lẻ là phần dư còn lại. Mặt hàng chưa khai báo quy cách thì không chia thùng.",
	}, nil
}

func (a *Assembler) inventoryFact(ctx context.Context, question string) (*Fact, error) {
	lookup := extract.ExtractLookup(question)
	if lookup == nil {
		return nil, nil
	}

	item, fact, err := a.resolveItem(ctx, lookup)
	if err != nil || fact != nil {
		return fact, err
	}
	return InventoryFact(item, extract.DetectMetric(question)), nil
}

// resolveItem returns either the single matching item or a not-found fact.
func (a *Assembler) resolveItem(ctx context.Context, lookup *models.Lookup) (*models.InventoryItem, *Fact, error) {
	notFound := &Fact{Type: TypeInventory, Found: false, Query: lookup.Value}

	if lookup.Kind == models.LookupCode {
		item, err := a.catalog.FindItemByCode(ctx, lookup.Value)
		if errors.Is(err, models.ErrNotFound) {
			return nil, notFound, nil
		}
		if err != nil {
			return nil, nil, err
		}
		return item, nil, nil
	}

	items, err := a.catalog.FindItemsByName(ctx, lookup.Value, nameSearchLimit)
	if err != nil {
		return nil, nil, err
	}
	if len(items) != 1 {
		notFound.Candidates = candidatesOf(items)
		return nil, notFound, nil
	}
	return &items[0], nil, nil
}

// InventoryFact derives box metrics for a resolved item and surfaces the
// requested one, or all of them when metric is empty.
func InventoryFact(item *models.InventoryItem, metric extract.Metric) *Fact {
	m, explanation := ComputeMetrics(item)
	fact := &Fact{
		Type:            TypeInventory,
		Found:           true,
		Item:            refOf(item),
		Metrics:         &m,
		RequestedMetric: metric,
		Explanation:     explanation,
	}

	switch metric {
	case extract.MetricRest:
		fact.RequestedValue = m.Rest
	case extract.MetricBoxes:
		fact.RequestedValue = map[string]int64{"boxes": m.Boxes, "remainder": m.Remainder}
	case extract.MetricReceived:
		fact.RequestedValue = m.Received
	case extract.MetricDelivered:
		fact.RequestedValue = m.Delivered
	case extract.MetricQuantityPerBox:
		fact.RequestedValue = m.QuantityPerBox
	default:
		fact.RequestedValue = m
	}
	return fact
}

// ComputeMetrics splits the rest quantity into whole boxes and loose units.
func ComputeMetrics(item *models.InventoryItem) (Metrics, string) {
	rest := item.RestQuantity.Quantity
	qpb := item.QuantityPerBox
	m := Metrics{
		QuantityPerBox: qpb,
		Rest:           item.RestQuantity,
		Received:       item.ReceivedQuantity,
		Delivered:      item.DeliveredQuantity,
	}

	if qpb <= 0 {
		m.Boxes = 0
		m.Remainder = rest
		return m, fmt.Sprintf("Mặt hàng chưa có quy cách mỗi thùng nên không áp dụng quy tắc chia thùng; số lẻ = tồn = %d.", rest)
	}

	m.Boxes = floorDiv(rest, qpb)
	m.Remainder = rest - m.Boxes*qpb
	return m, fmt.Sprintf("Số thùng = floor(%d / %d) = %d; số lẻ = %d mod %d = %d.",
		rest, qpb, m.Boxes, rest, qpb, m.Remainder)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
