package template

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/segmentio/cdcmerge/pkg/event"
)

// Context carries the row-embedded metadata available to naming
// templates.
type Context struct {
	Stream string
	Schema string
	Table  string
}

// ContextFor builds a Context from a change event's metadata columns.
func ContextFor(ev event.ChangeEvent) Context {
	return Context{
		Stream: ev.StreamName(),
		Schema: ev.SchemaName(),
		Table:  ev.TableName(),
	}
}

// FormatError indicates that a naming template references a
// placeholder that the event context cannot supply, either because the
// placeholder is unknown or because the event carries no value for it.
type FormatError struct {
	Placeholder string
	Template    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("template %q cannot resolve placeholder %q", e.Template, e.Placeholder)
}

var placeholderPattern = regexp.MustCompile(`\{[^{}]*\}`)

// Format substitutes the context's metadata into a user-supplied
// naming template. Placeholders take the form {_metadata_stream},
// {_metadata_schema}, and {_metadata_table}. A template without
// placeholders is returned unchanged. Format is deterministic and has
// no side effects.
func Format(tmpl string, tctx Context) (string, error) {
	var ferr *FormatError
	fail := func(name string) string {
		if ferr == nil {
			ferr = &FormatError{Placeholder: name, Template: tmpl}
		}
		return ""
	}
	resolve := func(name, value string) string {
		// an event that carries no value for a referenced placeholder
		// cannot name its tables
		if value == "" {
			return fail(name)
		}
		return value
	}
	out := placeholderPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(m, "{"), "}")
		switch name {
		case event.MetadataStream:
			return resolve(name, tctx.Stream)
		case event.MetadataSchema:
			return resolve(name, tctx.Schema)
		case event.MetadataTable:
			return resolve(name, tctx.Table)
		default:
			return fail(name)
		}
	})
	if ferr != nil {
		return "", ferr
	}
	return out, nil
}
