package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"possync/internal/application/common"
	"possync/internal/application/entity"

	"github.com/jackc/pgx/v5"
)

// syncRelatedRows keeps child tables consistent with list fields embedded in a
// parent payload: a product's barcodes land in productbarcodes, a bill's items
// replace its billitems. Fields expects normalized (lowercase) keys.
func (r *RemoteImpl) syncRelatedRows(ctx context.Context, spec entity.TableSpec, recordID string, fields map[string]any) error {
	switch spec.Name {
	case "products":
		raw, ok := fields["barcodes"]
		if !ok {
			return nil
		}
		return r.reconcileBarcodes(ctx, recordID, raw)
	case "bills":
		raw, ok := fields["items"]
		if !ok {
			return nil
		}
		return r.replaceBillItems(ctx, recordID, raw)
	default:
		return nil
	}
}

// reconcileBarcodes diffs the payload's barcode set against the child table,
// inserting the missing ones and removing the stale ones.
func (r *RemoteImpl) reconcileBarcodes(ctx context.Context, productID string, raw any) error {
	incoming, ok := parseBarcodes(raw)
	if !ok {
		r.logger.Warnf("[products: %s] barcodes field has unexpected type %T, treating as empty", productID, raw)
	}

	existing := make(map[string]struct{})
	err := r.withRetry(ctx, "select_barcodes", func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, selectProductBarcodesSQL, productID)
		if err != nil {
			return err
		}
		defer rows.Close()

		clear(existing)
		for rows.Next() {
			var b string
			if err := rows.Scan(&b); err != nil {
				return err
			}
			existing[b] = struct{}{}
		}
		return rows.Err()
	})
	if err != nil {
		return fmt.Errorf("read barcodes of product %s: %w", productID, err)
	}

	want := make(map[string]struct{}, len(incoming))
	for _, b := range incoming {
		want[b] = struct{}{}
	}

	added, removed := 0, 0
	for _, b := range incoming {
		if _, ok := existing[b]; ok {
			continue
		}
		if _, err := r.db.Exec(ctx, insertProductBarcodeSQL, productID, b); err != nil {
			return fmt.Errorf("add barcode %q to product %s: %w", b, productID, err)
		}
		added++
	}
	for b := range existing {
		if _, ok := want[b]; ok {
			continue
		}
		if _, err := r.db.Exec(ctx, deleteProductBarcodeSQL, productID, b); err != nil {
			return fmt.Errorf("remove barcode %q from product %s: %w", b, productID, err)
		}
		removed++
	}

	if added > 0 || removed > 0 {
		r.logger.Infof("[products: %s] barcodes reconciled: %d added, %d removed", productID, added, removed)
	}
	return nil
}

// parseBarcodes accepts the two shapes barcodes arrive in: a list of values,
// or the whole list flattened into one comma-delimited string.
func parseBarcodes(raw any) ([]string, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, true
	case []string:
		out := make([]string, 0, len(v))
		for _, b := range v {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
		return dedupSorted(out), true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if b := strings.TrimSpace(fmt.Sprint(item)); b != "" {
				out = append(out, b)
			}
		}
		return dedupSorted(out), true
	case string:
		out := make([]string, 0, 4)
		for _, part := range strings.Split(v, ",") {
			if b := strings.TrimSpace(part); b != "" {
				out = append(out, b)
			}
		}
		return dedupSorted(out), true
	default:
		return nil, false
	}
}

func dedupSorted(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	var prev string
	for i, b := range in {
		if i > 0 && b == prev {
			continue
		}
		out = append(out, b)
		prev = b
	}
	return out
}

// replaceBillItems swaps the bill's line items for the ones embedded in the
// payload. A bill's items are always written as a whole, never patched.
func (r *RemoteImpl) replaceBillItems(ctx context.Context, billID string, raw any) error {
	items, ok := raw.([]any)
	if !ok && raw != nil {
		r.logger.Warnf("[bills: %s] items field has unexpected type %T, treating as empty", billID, raw)
	}

	cols, err := r.columnsFor(ctx, "billitems")
	if err != nil {
		return err
	}

	return r.db.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := r.db.Exec(ctx, deleteBillItemsSQL, billID); err != nil {
			return fmt.Errorf("clear items of bill %s: %w", billID, err)
		}

		inserted := 0
		for _, rawItem := range items {
			item, ok := rawItem.(map[string]any)
			if !ok {
				r.logger.Warnf("[bills: %s] skipping malformed line item %v", billID, rawItem)
				continue
			}

			fields := common.NormalizeFields(item)
			fields["billid"] = billID
			if _, ok := fields["productid"]; !ok {
				r.logger.Warnf("[bills: %s] skipping line item without productid", billID)
				continue
			}

			names := make([]string, 0, len(fields))
			for col := range fields {
				if _, ok := cols[col]; ok {
					names = append(names, col)
				}
			}
			sort.Strings(names)

			args := make([]any, 0, len(names))
			for _, col := range names {
				args = append(args, fields[col])
			}
			if _, err := r.db.Exec(ctx, buildInsertQuery("billitems", names), args...); err != nil {
				return fmt.Errorf("insert item of bill %s: %w", billID, err)
			}
			inserted++
		}

		r.logger.Infof("[bills: %s] line items replaced: %d written", billID, inserted)
		return nil
	})
}

func buildInsertQuery(table string, cols []string) string {
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = pgx.Identifier{col}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}
