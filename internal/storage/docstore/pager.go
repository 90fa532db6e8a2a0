package docstore

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// Pager iterates over query results one page at a time. Each page opens
// a fresh iterator starting after the last key returned, so writes made
// between pages are visible to later pages.
type Pager struct {
	container    *Container
	partitionKey string
	lower        []byte
	upper        []byte
	pageSize     int
	more         bool
}

// More reports whether another page may be available
func (p *Pager) More() bool {
	return p.more
}

// NextPage returns the next page of items
func (p *Pager) NextPage(ctx context.Context) ([]*Item, error) {
	_, span := startSpan(ctx, "query", p.container.name, p.partitionKey, "")
	defer span.End()

	if !p.more {
		return nil, nil
	}
	if err := p.container.store.checkOpen(); err != nil {
		p.more = false
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	iter, err := p.container.store.db.NewIter(&pebble.IterOptions{
		LowerBound: p.lower,
		UpperBound: p.upper,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	items := make([]*Item, 0, p.pageSize)
	var lastKey []byte
	for iter.First(); iter.Valid() && len(items) < p.pageSize; iter.Next() {
		partitionKey, id, ok := decodeKey(iter.Key())
		if !ok {
			continue
		}

		raw, err := iter.ValueAndErr()
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to read document %s: %w", id, err)
		}
		v, err := decodeValue(append([]byte(nil), raw...))
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
		}

		items = append(items, toItem(partitionKey, id, v))
		lastKey = append(lastKey[:0], iter.Key()...)
	}

	if len(items) < p.pageSize || !iter.Valid() {
		p.more = false
	}
	if lastKey != nil {
		// smallest key strictly greater than lastKey
		p.lower = append(lastKey, 0x00)
	}

	return items, nil
}

// All drains the pager
func (p *Pager) All(ctx context.Context) ([]*Item, error) {
	var all []*Item
	for p.More() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return all, err
		}
		all = append(all, page...)
	}
	return all, nil
}
