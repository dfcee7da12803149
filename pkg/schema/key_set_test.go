package schema

import (
	"testing"

	"github.com/segmentio/cdcmerge/pkg/event"
	"github.com/stretchr/testify/require"
)

func TestKeySetStates(t *testing.T) {
	for _, test := range []struct {
		desc        string
		ks          KeySet
		unmergeable bool
		degraded    bool
	}{
		{
			desc:        "zero",
			ks:          KeySetZero,
			unmergeable: true,
			degraded:    true,
		},
		{
			desc:        "primary keys only",
			ks:          KeySet{PrimaryKeys: []string{"order_id"}},
			unmergeable: false,
			degraded:    true,
		},
		{
			desc:        "fully keyed",
			ks:          KeySet{PrimaryKeys: []string{"order_id"}, SortKeys: []string{"update_ts"}},
			unmergeable: false,
			degraded:    false,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			require.Equal(t, test.unmergeable, test.ks.Unmergeable())
			require.Equal(t, test.degraded, test.ks.Degraded())
		})
	}
}

func TestRowResolver(t *testing.T) {
	ev := event.ChangeEvent{
		Row: map[string]interface{}{
			event.MetadataPrimaryKeys: []interface{}{"order_id"},
			event.MetadataSourceType:  "oracle",
		},
	}
	ks, err := RowResolver{}.Resolve(ev)
	require.NoError(t, err)
	require.Equal(t, []string{"order_id"}, ks.PrimaryKeys)
	require.Equal(t, []string{event.MetadataTimestamp, event.MetadataSCN}, ks.SortKeys)
	require.False(t, ks.Unmergeable())
	require.False(t, ks.Degraded())
}
