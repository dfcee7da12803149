package jobwriter

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/cdcmerge/pkg/merge"
	"github.com/segmentio/events/v2"
)

type (
	// WriteLine writes a line to something
	WriteLine interface {
		WriteLine(string) error
	}
	// MergeJobWriter hands derived merge job descriptors to the merge
	// coordinator as JSON lines, one descriptor per line.
	MergeJobWriter struct {
		WriteLine WriteLine
	}
)

func (w *MergeJobWriter) WriteJob(info merge.MergeInfo) error {
	bytes, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "error marshalling json")
	}

	events.Debug("mergeJobWriter.WriteJob: %{staging}s => %{replica}s job=%{job}s",
		info.StagingTable, info.ReplicaTable, info.JobID)

	return w.WriteLine.WriteLine(string(bytes))
}
