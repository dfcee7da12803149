package schema

import (
	"github.com/segmentio/cdcmerge/pkg/event"
)

var KeySetZero = KeySet{}

// KeySet holds the ordered primary key and sort key column names for a
// destination table. Primary keys uniquely identify a destination row;
// sort keys decide which of several conflicting changes for the same
// primary key wins. Either list may legitimately be empty.
type KeySet struct {
	PrimaryKeys []string
	SortKeys    []string
}

// Unmergeable reports whether consolidation is impossible for tables
// with this key set. Without a unique row key there is nothing to
// match staged changes against.
func (ks KeySet) Unmergeable() bool {
	return len(ks.PrimaryKeys) == 0
}

// Degraded reports whether merge ordering is non-deterministic for
// tables with this key set.
func (ks KeySet) Degraded() bool {
	return len(ks.SortKeys) == 0
}

// Resolver supplies the key set for a change event's table.
type Resolver interface {
	Resolve(ev event.ChangeEvent) (KeySet, error)
}

// RowResolver resolves keys from the metadata columns embedded in the
// event row itself. This is the default resolver; the capture process
// stamps key metadata onto every row it emits.
type RowResolver struct{}

func (RowResolver) Resolve(ev event.ChangeEvent) (KeySet, error) {
	return KeySet{
		PrimaryKeys: ev.PrimaryKeys(),
		SortKeys:    ev.SortKeys(),
	}, nil
}
