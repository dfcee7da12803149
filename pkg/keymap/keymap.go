package keymap

import (
	"strings"

	"github.com/segmentio/cdcmerge/pkg/event"
	"github.com/segmentio/cdcmerge/pkg/schema"
)

// TableKeys holds the configured key columns for one source table.
type TableKeys struct {
	PrimaryKeys []string `json:"primary_keys"`
	SortKeys    []string `json:"sort_keys"`
}

// KeyMap maps fully qualified source table names (schema.table) to
// their key columns. Operators publish this as a JSON document; see
// the Fetch function for the bootstrap path.
type KeyMap map[string]TableKeys

// Static resolves key sets from a key map loaded at startup, falling
// back to another resolver for tables the map does not list.
type Static struct {
	keys     KeyMap
	fallback schema.Resolver
}

func NewStatic(keys KeyMap, fallback schema.Resolver) *Static {
	return &Static{keys: keys, fallback: fallback}
}

func (s *Static) Resolve(ev event.ChangeEvent) (schema.KeySet, error) {
	name := strings.Join([]string{ev.SchemaName(), ev.TableName()}, ".")
	if tk, ok := s.keys[name]; ok {
		return schema.KeySet{
			PrimaryKeys: tk.PrimaryKeys,
			SortKeys:    tk.SortKeys,
		}, nil
	}
	if s.fallback != nil {
		return s.fallback.Resolve(ev)
	}
	return schema.KeySetZero, nil
}
