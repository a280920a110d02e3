package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stockdesk/backend/internal/storage/models"
)

// The catalog tables belong to the CRUD layer; this package only reads them.

const inventoryColumns = `id, code, name, quantity_per_box,
	received_quantity, received_real, delivered_quantity, delivered_real,
	rest_quantity, rest_real, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInventoryItem(row rowScanner) (*models.InventoryItem, error) {
	var item models.InventoryItem
	var deletedAt sql.NullInt64
	err := row.Scan(
		&item.ID,
		&item.Code,
		&item.Name,
		&item.QuantityPerBox,
		&item.ReceivedQuantity.Quantity,
		&item.ReceivedQuantity.Real,
		&item.DeliveredQuantity.Quantity,
		&item.DeliveredQuantity.Real,
		&item.RestQuantity.Quantity,
		&item.RestQuantity.Real,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		t := fromMillis(deletedAt.Int64)
		item.DeletedAt = &t
	}
	return &item, nil
}

func (c *Client) FindItemByCode(ctx context.Context, code string) (*models.InventoryItem, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory_items
		WHERE fold(code) = fold(?) AND deleted_at IS NULL
		LIMIT 1`

	item, err := scanInventoryItem(c.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item by code: %w", err)
	}
	return item, nil
}

// FindItemsByName returns live items whose folded name contains the folded query.
func (c *Client) FindItemsByName(ctx context.Context, name string, limit int) ([]models.InventoryItem, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory_items
		WHERE instr(fold(name), fold(?)) > 0 AND deleted_at IS NULL
		ORDER BY code
		LIMIT ?`

	return c.queryItems(ctx, query, name, limit)
}

// FindItemsByIDs includes soft-deleted items so old references still resolve.
func (c *Client) FindItemsByIDs(ctx context.Context, ids []string) ([]models.InventoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + inventoryColumns + ` FROM inventory_items
		WHERE id IN (` + placeholders(len(ids)) + `)`

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return c.queryItems(ctx, query, args...)
}

func (c *Client) queryItems(ctx context.Context, query string, args ...any) ([]models.InventoryItem, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []models.InventoryItem
	for rows.Next() {
		item, err := scanInventoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (c *Client) FindComboByName(ctx context.Context, name string) (*models.ProductCombo, error) {
	var combo models.ProductCombo
	err := c.db.QueryRowContext(ctx, `SELECT id, name FROM product_combos
		WHERE fold(name) = fold(?) AND deleted_at IS NULL
		LIMIT 1`, name).Scan(&combo.ID, &combo.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find combo: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `SELECT item_id, quantity FROM product_combo_items
		WHERE combo_id = ? ORDER BY position`, combo.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query combo items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ci models.ComboItem
		if err := rows.Scan(&ci.ItemID, &ci.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		combo.Items = append(combo.Items, ci)
	}
	return &combo, rows.Err()
}

// movementWhere matches entries that reference any of the ids either through
// the legacy single item column or through the multi-item table. The id list
// comes from name widening and stays far below SQLite's variable limit.
func movementWhere(filter models.MovementFilter) (string, []any) {
	in := placeholders(len(filter.ItemIDs))
	where := `(item_id IN (` + in + `)
			OR EXISTS (SELECT 1 FROM movement_log_items mi
				WHERE mi.log_id = movement_logs.id AND mi.item_id IN (` + in + `)))`

	args := make([]any, 0, 2*len(filter.ItemIDs)+3)
	args = appendIDs(args, filter.ItemIDs)
	args = appendIDs(args, filter.ItemIDs)
	if filter.Status != "" {
		where += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Date != nil {
		where += ` AND date >= ? AND date <= ?`
		args = append(args, toMillis(filter.Date.Gte), toMillis(filter.Date.Lte))
	}
	return where, args
}

func appendIDs(args []any, ids []string) []any {
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}

// SummarizeMovements counts the matching entries and sums the quantity moved
// for the filtered items in SQL, then loads only the sampleLimit most recent
// entries. The matching set never leaves the database.
func (c *Client) SummarizeMovements(ctx context.Context, filter models.MovementFilter, sampleLimit int) (*models.MovementDigest, error) {
	digest := &models.MovementDigest{}
	if len(filter.ItemIDs) == 0 {
		return digest, nil
	}

	where, args := movementWhere(filter)
	in := placeholders(len(filter.ItemIDs))
	query := `WITH matched AS (SELECT id, item_id, item_quantity FROM movement_logs WHERE ` + where + `)
		SELECT
			(SELECT COUNT(*) FROM matched),
			COALESCE((SELECT SUM(item_quantity) FROM matched WHERE item_id IN (` + in + `)), 0),
			COALESCE((SELECT SUM(mi.quantity) FROM movement_log_items mi
				JOIN matched m ON mi.log_id = m.id
				WHERE mi.item_id IN (` + in + `)), 0)`
	args = appendIDs(args, filter.ItemIDs)
	args = appendIDs(args, filter.ItemIDs)

	var legacy, multi int64
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&digest.TotalCount, &legacy, &multi); err != nil {
		return nil, fmt.Errorf("failed to aggregate movements: %w", err)
	}
	digest.TotalQuantity = legacy + multi

	if digest.TotalCount == 0 || sampleLimit <= 0 {
		return digest, nil
	}
	samples, err := c.FindMovements(ctx, filter, sampleLimit)
	if err != nil {
		return nil, err
	}
	digest.Samples = samples
	return digest, nil
}

// FindMovements returns up to limit matching entries, most recent first.
func (c *Client) FindMovements(ctx context.Context, filter models.MovementFilter, limit int) ([]models.MovementLog, error) {
	if len(filter.ItemIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	where, args := movementWhere(filter)
	query := `SELECT id, item_id, item_quantity, status, date, note, tag FROM movement_logs
		WHERE ` + where + `
		ORDER BY date DESC, id DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}

	var logs []models.MovementLog
	index := make(map[string]int)
	for rows.Next() {
		var log models.MovementLog
		var itemID sql.NullString
		var itemQty sql.NullInt64
		var date int64
		if err := rows.Scan(&log.ID, &itemID, &itemQty, &log.Status, &date, &log.Note, &log.Tag); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		log.Date = fromMillis(date)
		if itemID.Valid {
			log.Item = &models.MovementItem{ItemID: itemID.String, Quantity: itemQty.Int64}
		}
		index[log.ID] = len(logs)
		logs = append(logs, log)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read movements: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}

	if err := c.loadMovementItems(ctx, logs, index); err != nil {
		return nil, err
	}
	return logs, nil
}

func (c *Client) loadMovementItems(ctx context.Context, logs []models.MovementLog, index map[string]int) error {
	args := make([]any, len(logs))
	for i, log := range logs {
		args[i] = log.ID
	}

	rows, err := c.db.QueryContext(ctx, `SELECT log_id, item_id, quantity FROM movement_log_items
		WHERE log_id IN (`+placeholders(len(args))+`)
		ORDER BY log_id, position`, args...)
	if err != nil {
		return fmt.Errorf("failed to query movement items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var logID string
		var mi models.MovementItem
		if err := rows.Scan(&logID, &mi.ItemID, &mi.Quantity); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		i := index[logID]
		logs[i].Items = append(logs[i].Items, mi)
	}
	return rows.Err()
}
