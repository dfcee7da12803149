package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSqlSprintf(t *testing.T) {
	q := SqlSprintf("SELECT seq FROM $1 WHERE seq > ? LIMIT $2", "merge_ledger", "100")
	require.Equal(t, "SELECT seq FROM merge_ledger WHERE seq > ? LIMIT 100", q)
}

func TestSqlSprintfRejectsUnsafeValue(t *testing.T) {
	require.Panics(t, func() {
		SqlSprintf("SELECT seq FROM $1", "merge_ledger; DROP TABLE foo")
	})
}
