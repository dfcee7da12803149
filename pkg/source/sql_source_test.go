package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/segmentio/cdcmerge/pkg/event"
	_ "github.com/segmentio/go-sqlite3"
	"github.com/stretchr/testify/require"
)

type sqlEventSourceTestUtil struct {
	db *sql.DB
	t  *testing.T
}

func (u *sqlEventSourceTestUtil) InitializeDB() {
	_, err := u.db.Exec(`
		CREATE TABLE merge_ledger (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			leader_ts INTEGER NOT NULL DEFAULT CURRENT_TIMESTAMP,
			payload VARCHAR(4096),
			dataset VARCHAR(191),
			table_name VARCHAR(191)
		);
		INSERT INTO merge_ledger (payload, dataset, table_name) VALUES('{}', '', '');
		DELETE FROM merge_ledger;
	`)

	// the above bumps seq to 1 as starting value, since zero-values should
	// probably be avoided
	if err != nil {
		u.t.Fatalf("Failed to initialize event source DB, error: %v", err)
	}
}

func (u *sqlEventSourceTestUtil) AddEvent(dataset, table string, row map[string]interface{}) {
	payload, err := json.Marshal(row)
	require.NoError(u.t, err)
	_, err = u.db.Exec("INSERT INTO merge_ledger (payload, dataset, table_name) VALUES(?, ?, ?)",
		string(payload), dataset, table)
	if err != nil {
		u.t.Fatalf("Failed to insert event, error: %v", err)
	}
}

func TestSqlEventSource(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	srcutil := &sqlEventSourceTestUtil{db: db, t: t}
	srcutil.InitializeDB()

	queryBlockSize := 5
	src := sqlEventSource{
		db:              db,
		ledgerTableName: "merge_ledger",
		queryBlockSize:  queryBlockSize,
	}

	_, err = src.Next(ctx)
	require.Equal(t, errNoNewEvents, err)

	row := map[string]interface{}{
		event.MetadataTable: "orders",
		"order_id":          float64(7),
	}
	for i := 0; i < queryBlockSize*2; i++ {
		srcutil.AddEvent("sales", "orders", row)
	}

	var lastSeq int64
	for i := 0; i < queryBlockSize*2; i++ {
		ev, err := src.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, "sales", ev.Target.Dataset)
		require.Equal(t, "orders", ev.Target.Table)
		require.Equal(t, row, ev.Row)
		require.True(t, ev.Sequence > lastSeq)
		lastSeq = ev.Sequence
	}

	_, err = src.Next(ctx)
	require.Equal(t, errNoNewEvents, err)
}

func TestSqlEventSourceBadPayload(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	srcutil := &sqlEventSourceTestUtil{db: db, t: t}
	srcutil.InitializeDB()

	_, err = db.Exec("INSERT INTO merge_ledger (payload, dataset, table_name) VALUES('{nope', 'sales', 'orders')")
	require.NoError(t, err)

	src := sqlEventSource{
		db:              db,
		ledgerTableName: "merge_ledger",
	}
	_, err = src.Next(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "could not parse payload")
}
