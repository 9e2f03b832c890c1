package farm

import (
	"slices"

	"farmledger/pkg/domain"
)

// collection is one ordered entity collection together with where it lives
// locally and remotely.
type collection[T domain.Entity] struct {
	entity domain.EntityType
	table  string
	key    string
	items  []T
	toRow  func(T) domain.Row
}

func newCollection[T domain.Entity](entity domain.EntityType, key string, toRow func(T) domain.Row) collection[T] {
	return collection[T]{entity: entity, table: domain.TableFor(entity), key: key, toRow: toRow}
}

func (c *collection[T]) index(id string) int {
	return slices.IndexFunc(c.items, func(item T) bool { return item.EntityID() == id })
}

func (c *collection[T]) get(id string) (T, bool) {
	if i := c.index(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// remove drops every item whose id is in ids and returns the removed items.
func (c *collection[T]) remove(ids map[string]struct{}) []T {
	var removed []T
	c.items = slices.DeleteFunc(c.items, func(item T) bool {
		if _, ok := ids[item.EntityID()]; ok {
			removed = append(removed, item)
			return true
		}
		return false
	})
	return removed
}

func (c *collection[T]) snapshot() []T { return slices.Clone(c.items) }

func (c *collection[T]) rows() []domain.Row {
	out := make([]domain.Row, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, c.toRow(item))
	}
	return out
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func setKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func entityIDs[T domain.Entity](items []T) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.EntityID())
	}
	return out
}
