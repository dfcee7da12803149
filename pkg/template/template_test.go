package template

import (
	"testing"

	"github.com/segmentio/cdcmerge/pkg/event"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tctx := Context{
		Stream: "my-stream",
		Schema: "sales",
		Table:  "orders",
	}
	for _, test := range []struct {
		desc string
		tmpl string
		want string
	}{
		{
			desc: "identity without placeholders",
			tmpl: "staging_sales",
			want: "staging_sales",
		},
		{
			desc: "table placeholder",
			tmpl: "{_metadata_table}",
			want: "orders",
		},
		{
			desc: "schema and table",
			tmpl: "{_metadata_schema}_{_metadata_table}_log",
			want: "sales_orders_log",
		},
		{
			desc: "stream placeholder",
			tmpl: "cdc_{_metadata_stream}",
			want: "cdc_my-stream",
		},
		{
			desc: "empty template",
			tmpl: "",
			want: "",
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			got, err := Format(test.tmpl, tctx)
			require.NoError(t, err)
			require.Equal(t, test.want, got)

			// formatting must be idempotent for the same inputs
			again, err := Format(test.tmpl, tctx)
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}
}

func TestFormatMissingMetadata(t *testing.T) {
	// the event carries no table metadata, so a template referencing
	// the table placeholder cannot be resolved
	_, err := Format("{_metadata_table}_log", Context{Stream: "my-stream", Schema: "sales"})
	require.Error(t, err)
	ferr, ok := err.(*FormatError)
	require.True(t, ok)
	require.Equal(t, "_metadata_table", ferr.Placeholder)

	// a template that does not reference the missing field still works
	got, err := Format("{_metadata_schema}_log", Context{Schema: "sales"})
	require.NoError(t, err)
	require.Equal(t, "sales_log", got)
}

func TestFormatUnknownPlaceholder(t *testing.T) {
	_, err := Format("{_metadata_bogus}_suffix", Context{Table: "orders"})
	require.Error(t, err)
	ferr, ok := err.(*FormatError)
	require.True(t, ok)
	require.Equal(t, "_metadata_bogus", ferr.Placeholder)
	require.Equal(t, "{_metadata_bogus}_suffix", ferr.Template)
}

func TestContextFor(t *testing.T) {
	ev := event.ChangeEvent{
		Row: map[string]interface{}{
			event.MetadataStream: "my-stream",
			event.MetadataSchema: "sales",
			event.MetadataTable:  "orders",
		},
	}
	require.Equal(t, Context{Stream: "my-stream", Schema: "sales", Table: "orders"}, ContextFor(ev))
}
