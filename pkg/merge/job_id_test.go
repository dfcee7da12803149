package merge

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var jobIDPattern = regexp.MustCompile(
	`^datastream_my-project_replica_orders_\d{4}_\d{2}_\d{2}_\d{2}_\d{2}_\d{2}Z_[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestJobIDFormat(t *testing.T) {
	now := time.Date(2020, 5, 4, 3, 2, 1, 0, time.UTC)
	id := newJobID(DefaultJobIDPrefix, "my-project", "replica", "orders", now)
	require.Regexp(t, jobIDPattern, id)
	require.True(t, strings.HasPrefix(id, "datastream_my-project_replica_orders_2020_05_04_03_02_01Z_"))
}

func TestJobIDConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	now := time.Date(2020, 5, 4, 5, 0, 0, 0, loc)
	id := newJobID(DefaultJobIDPrefix, "my-project", "replica", "orders", now)
	require.Contains(t, id, "_2020_05_04_00_00_00Z_")
}

func TestJobIDUniqueness(t *testing.T) {
	const n = 10000
	now := time.Now()
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := newJobID(DefaultJobIDPrefix, "my-project", "replica", "orders", now)
		_, dupe := seen[id]
		require.False(t, dupe, "duplicate job id: %s", id)
		seen[id] = struct{}{}
	}
	require.Len(t, seen, n)
}
