package schema

import (
	"regexp"
	"strings"
)

var TableRefZero = TableRef{}

// TableRef is a fully qualified reference to a warehouse table.
type TableRef struct {
	Project string `json:"project"`
	Dataset string `json:"dataset"`
	Table   string `json:"table"`
}

func NewTableRef(project, dataset, table string) TableRef {
	return TableRef{Project: project, Dataset: dataset, Table: table}
}

// String is a Stringer implementation that produces the fully
// qualified table reference.
func (r TableRef) String() string {
	return strings.Join([]string{r.Project, r.Dataset, r.Table}, ".")
}

// Is this a zero value?
func (r TableRef) Zero() bool {
	return r == TableRefZero
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// SanitizeDataset rewrites a resolved dataset name so that the
// warehouse will accept it. Dataset names only allow letters, numbers,
// and underscores.
func SanitizeDataset(name string) string {
	return invalidNameChars.ReplaceAllString(name, "_")
}

// SanitizeTable rewrites a resolved table name the same way.
func SanitizeTable(name string) string {
	return invalidNameChars.ReplaceAllString(name, "_")
}
