package merge

import (
	"github.com/segmentio/cdcmerge/pkg/schema"
)

// MergeInfo is a self-contained descriptor for one downstream merge
// job: which staged changes to consolidate, where they land, and the
// keys that match and order rows. It is created at most once per
// qualifying change event and never mutated afterwards.
type MergeInfo struct {
	ProjectID    string          `json:"project_id"`
	PrimaryKeys  []string        `json:"primary_keys"`
	SortKeys     []string        `json:"sort_keys"`
	DeleteColumn string          `json:"delete_column"`
	StagingTable schema.TableRef `json:"staging_table"`
	ReplicaTable schema.TableRef `json:"replica_table"`
	JobID        string          `json:"job_id"`
}
