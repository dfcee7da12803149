package merge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultJobIDPrefix is the prefix used for merge job identifiers
// unless the deriver is configured with a different one.
const DefaultJobIDPrefix = "datastream"

const jobIDTimeFormat = "2006_01_02_15_04_05"

// newJobID produces a unique, human-traceable merge job identifier.
// The timestamp component orders identifiers chronologically for the
// same destination; the random token keeps two jobs for the same
// destination distinct even within the same second.
func newJobID(prefix, project, dataset, table string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s_%sZ_%s",
		prefix,
		project,
		dataset,
		table,
		now.UTC().Format(jobIDTimeFormat),
		uuid.New().String())
}
