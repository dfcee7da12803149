package event

import (
	"fmt"
	"strings"
)

// Reserved metadata columns embedded in every change event row. The
// capture process stamps these onto the row alongside the source
// columns; everything downstream keys off of them.
const (
	MetadataDeleted     = "_metadata_deleted"
	MetadataTable       = "_metadata_table"
	MetadataSchema      = "_metadata_schema"
	MetadataStream      = "_metadata_stream"
	MetadataSourceType  = "_metadata_source_type"
	MetadataTimestamp   = "_metadata_timestamp"
	MetadataSCN         = "_metadata_scn"
	MetadataLogFile     = "_metadata_log_file"
	MetadataLogPosition = "_metadata_log_position"
	MetadataPrimaryKeys = "_metadata_primary_keys"
)

// TableID identifies the destination dataset/table pair a change
// event is bound for.
type TableID struct {
	Dataset string `json:"dataset"`
	Table   string `json:"table"`
}

// String is a Stringer implementation that produces the fully
// qualified destination name.
func (t TableID) String() string {
	return strings.Join([]string{t.Dataset, t.Table}, ".")
}

// ChangeEvent is a single row-level change captured at a source
// system, tagged with a destination table identity. The row includes
// the reserved metadata columns above. ChangeEvents are never mutated
// after creation.
type ChangeEvent struct {
	Sequence int64
	Target   TableID
	Row      map[string]interface{}
}

// StreamName returns the name of the capture stream that produced
// this event.
func (e ChangeEvent) StreamName() string {
	return e.stringAt(MetadataStream)
}

// SchemaName returns the source schema the changed row belongs to.
func (e ChangeEvent) SchemaName() string {
	return e.stringAt(MetadataSchema)
}

// TableName returns the origin table name embedded in the row.
func (e ChangeEvent) TableName() string {
	return e.stringAt(MetadataTable)
}

// Deleted reports whether this event represents a row deletion.
func (e ChangeEvent) Deleted() bool {
	switch v := e.Row[MetadataDeleted].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

// PrimaryKeys returns the primary key column names embedded in the
// row metadata, or nil when the capture process could not determine
// them.
func (e ChangeEvent) PrimaryKeys() []string {
	switch v := e.Row[MetadataPrimaryKeys].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, k := range v {
			out = append(out, fmt.Sprintf("%v", k))
		}
		return out
	default:
		return nil
	}
}

// SortKeys returns the sort key column names for this event based on
// the source database type. Conflicting changes for the same primary
// key are ordered by these columns, most significant first.
func (e ChangeEvent) SortKeys() []string {
	switch strings.ToLower(e.stringAt(MetadataSourceType)) {
	case "mysql":
		return []string{MetadataTimestamp, MetadataLogFile, MetadataLogPosition}
	case "oracle":
		return []string{MetadataTimestamp, MetadataSCN}
	default:
		return []string{MetadataTimestamp}
	}
}

func (e ChangeEvent) stringAt(col string) string {
	if v, ok := e.Row[col].(string); ok {
		return v
	}
	return ""
}
