package merge

import (
	"sync/atomic"
	"time"

	"github.com/segmentio/cdcmerge/pkg/errs"
	"github.com/segmentio/cdcmerge/pkg/event"
	"github.com/segmentio/cdcmerge/pkg/globalstats"
	"github.com/segmentio/cdcmerge/pkg/schema"
	"github.com/segmentio/cdcmerge/pkg/template"
	"github.com/segmentio/errors-go"
	"github.com/segmentio/events/v2"
	"github.com/segmentio/stats/v4"
)

// Config supplies the static naming configuration for a Deriver. The
// dataset and table fields are naming templates; see the template
// package for the placeholder grammar.
type Config struct {
	ProjectID      string
	StagingDataset string
	StagingTable   string
	ReplicaDataset string
	ReplicaTable   string
	JobIDPrefix    string
}

// Deriver turns change events into merge job descriptors. It holds no
// cross-invocation mutable state other than the foregone-merges
// counter, so a single Deriver is safe to share across many event
// processing goroutines.
type Deriver struct {
	cfg      Config
	resolver schema.Resolver
	now      func() time.Time
	foregone int64 // atomic
}

type DeriverOpt func(d *Deriver)

// WithResolver overrides the default row-embedded key resolver.
func WithResolver(r schema.Resolver) DeriverOpt {
	return func(d *Deriver) {
		d.resolver = r
	}
}

func NewDeriver(cfg Config, opts ...DeriverOpt) (*Deriver, error) {
	switch {
	case cfg.ProjectID == "":
		return nil, errors.New("no project id supplied")
	case cfg.StagingDataset == "" || cfg.StagingTable == "":
		return nil, errors.New("no staging name templates supplied")
	case cfg.ReplicaDataset == "" || cfg.ReplicaTable == "":
		return nil, errors.New("no replica name templates supplied")
	}
	if cfg.JobIDPrefix == "" {
		cfg.JobIDPrefix = DefaultJobIDPrefix
	}
	d := &Deriver{
		cfg:      cfg,
		resolver: schema.RowResolver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Derive produces at most one merge job descriptor for a change
// event. A nil descriptor with a *DerivationError explains why the
// event was dropped; no error ever warrants aborting the stream.
func (d *Deriver) Derive(ev event.ChangeEvent) (info *MergeInfo, err error) {
	defer func() {
		// a single malformed event must not take down the stream
		if r := recover(); r != nil {
			info = nil
			err = d.failure(ev, KindUnexpected, errors.Errorf("panic during derivation: %v", r))
		}
	}()

	keys, rerr := d.resolver.Resolve(ev)
	if rerr != nil {
		return nil, d.failure(ev, KindUnexpected, rerr)
	}

	if keys.Unmergeable() {
		events.Log("Unable to retrieve primary keys for table %{schema}s.%{table}s in stream %{stream}s. "+
			"Not performing merge-based consolidation.",
			ev.SchemaName(), ev.TableName(), ev.StreamName())
		d.recordForegone(ev)
		return nil, &DerivationError{Kind: KindUnmergeable, Table: ev.Target}
	}
	if keys.Degraded() {
		// the descriptor is still produced, but merge ordering becomes
		// non-deterministic when multiple changes target the same
		// primary key. the foregone counter moves here too, matching
		// the unmergeable path.
		events.Log("Unable to retrieve sort keys for table %{schema}s.%{table}s in stream %{stream}s. "+
			"Merge ordering will be non-deterministic.",
			ev.SchemaName(), ev.TableName(), ev.StreamName())
		d.recordForegone(ev)
	}

	tctx := template.ContextFor(ev)
	staging, ferr := d.formatTable(d.cfg.StagingDataset, d.cfg.StagingTable, tctx)
	if ferr != nil {
		return nil, d.failure(ev, KindFormat, ferr)
	}
	replica, ferr := d.formatTable(d.cfg.ReplicaDataset, d.cfg.ReplicaTable, tctx)
	if ferr != nil {
		return nil, d.failure(ev, KindFormat, ferr)
	}

	return &MergeInfo{
		ProjectID:    d.cfg.ProjectID,
		PrimaryKeys:  keys.PrimaryKeys,
		SortKeys:     keys.SortKeys,
		DeleteColumn: event.MetadataDeleted,
		StagingTable: staging,
		ReplicaTable: replica,
		JobID:        newJobID(d.cfg.JobIDPrefix, d.cfg.ProjectID, replica.Dataset, replica.Table, d.now()),
	}, nil
}

// ForegoneMerges returns how many times consolidation was skipped or
// degraded due to missing keys. Read-only export for reporting.
func (d *Deriver) ForegoneMerges() int64 {
	return atomic.LoadInt64(&d.foregone)
}

func (d *Deriver) formatTable(datasetTmpl, tableTmpl string, tctx template.Context) (schema.TableRef, error) {
	dataset, err := template.Format(datasetTmpl, tctx)
	if err != nil {
		return schema.TableRefZero, err
	}
	table, err := template.Format(tableTmpl, tctx)
	if err != nil {
		return schema.TableRefZero, err
	}
	return schema.NewTableRef(
		d.cfg.ProjectID,
		schema.SanitizeDataset(dataset),
		schema.SanitizeTable(table),
	), nil
}

func (d *Deriver) recordForegone(ev event.ChangeEvent) {
	atomic.AddInt64(&d.foregone, 1)
	globalstats.Incr("merges-foregone", ev.Target.Dataset, ev.Target.Table)
}

func (d *Deriver) failure(ev event.ChangeEvent, kind Kind, err error) error {
	events.Log("Merge info failure, skipping merge for %{event}v: %{error}s", ev.Row, err)
	errs.Incr("derive-errors", stats.T("kind", kind.String()))
	return &DerivationError{Kind: kind, Table: ev.Target, Err: err}
}
