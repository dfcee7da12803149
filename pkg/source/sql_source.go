package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/cdcmerge/pkg/event"
	"github.com/segmentio/cdcmerge/pkg/sqlgen"
	"github.com/segmentio/stats/v4"
)

const (
	defaultQueryBlockSize = 100
	ledgerTimestampFormat = "2006-01-02 15:04:05"
)

var errNoNewEvents = errors.New("No new events")

type eventSource interface {
	Next(ctx context.Context) (event.ChangeEvent, error)
}

// an eventSource built on top of a database/sql instance. the capture
// process appends change events to a ledger table; this source reads
// them back out in sequence order.
type sqlEventSource struct {
	db               *sql.DB
	lastSequence     int64
	ledgerTableName  string
	queryBlockSize   int
	buffer           []event.ChangeEvent
	scanLoopCallBack func()
}

// Next returns the next sequential change event in the ledger. If
// there are no new events, it returns errNoNewEvents. Any errors that
// occur while fetching data will be returned as well.
func (source *sqlEventSource) Next(ctx context.Context) (ev event.ChangeEvent, err error) {
	if len(source.buffer) == 0 {
		blocksize := source.queryBlockSize
		if blocksize == 0 {
			blocksize = defaultQueryBlockSize
		}

		// table layout is: seq, leader_ts, payload, dataset, table_name
		qs := sqlgen.SqlSprintf("SELECT seq, leader_ts, payload, dataset, table_name FROM $1 WHERE seq > ? ORDER BY seq LIMIT $2",
			source.ledgerTableName,
			fmt.Sprintf("%d", blocksize))

		rows, err := source.db.QueryContext(ctx, qs, source.lastSequence)
		if err != nil {
			return ev, errors.Wrap(err, "select row")
		}
		defer rows.Close()

		row := struct {
			seq      int64
			leaderTs string // this is a string b/c the driver errors when trying to Scan into a *time.Time.
			payload  string
			dataset  string
			table    string
		}{}

		for {
			if source.scanLoopCallBack != nil {
				source.scanLoopCallBack()
			}

			if !rows.Next() {
				break
			}

			err = rows.Scan(&row.seq, &row.leaderTs, &row.payload, &row.dataset, &row.table)
			if err != nil {
				return ev, errors.Wrap(err, "scan row")
			}

			if row.seq > source.lastSequence+1 {
				stats.Incr("sql_event_source.skipped_sequence")
			}

			if _, err := time.Parse(ledgerTimestampFormat, row.leaderTs); err != nil {
				return ev, errors.Wrapf(err, "could not parse time '%s'", row.leaderTs)
			}

			var rowMap map[string]interface{}
			if err := json.Unmarshal([]byte(row.payload), &rowMap); err != nil {
				return ev, errors.Wrapf(err, "could not parse payload at seq %d", row.seq)
			}

			cev := event.ChangeEvent{
				Sequence: row.seq,
				Target: event.TableID{
					Dataset: row.dataset,
					Table:   row.table,
				},
				Row: rowMap,
			}

			source.buffer = append(source.buffer, cev)

			// if this doesn't get updated every time, say just doing the last row
			// after the iteration, an early return can cause lastSequence to diverge
			// from the buffer contents
			source.lastSequence = cev.Sequence
		}

		err = rows.Err()
		if err != nil {
			return ev, errors.Wrap(err, "rows err")
		}
	}

	// Still have to guard this case because source.buffer gets
	// mutated above, and certainly could add zero events.
	if len(source.buffer) > 0 {
		// FIFO queue
		ev = source.buffer[0]
		source.buffer = source.buffer[1:]
		return ev, nil
	}

	err = errNoNewEvents
	return
}
