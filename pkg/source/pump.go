package source

import (
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/segmentio/cdcmerge/pkg/errs"
	"github.com/segmentio/cdcmerge/pkg/merge"
	"github.com/segmentio/errors-go"
	"github.com/segmentio/events/v2"
	"github.com/segmentio/stats/v4"
)

// JobSink consumes derived merge job descriptors. The jobwriter
// package provides the implementation the merge coordinator tails.
type JobSink interface {
	WriteJob(info merge.MergeInfo) error
}

// Config specifies how to reach and poll the upstream event ledger.
type Config struct {
	Driver                string
	DSN                   string
	LedgerTable           string
	QueryBlockSize        int
	PollInterval          time.Duration
	PollTimeout           time.Duration
	PollJitterCoefficient float64
}

// Pump polls the upstream ledger for change events, derives merge
// info for each one, and forwards the resulting descriptors to a
// sink. A dropped event never stops the pump; only source and sink
// I/O failures do.
type Pump struct {
	source  eventSource
	closers []io.Closer
	deriver *merge.Deriver
	sink    JobSink

	pollInterval      time.Duration
	pollTimeout       time.Duration
	jitterCoefficient float64
	stop              chan struct{}
}

func New(config Config, deriver *merge.Deriver, sink JobSink) (*Pump, error) {
	switch {
	case config.Driver == "" || config.DSN == "":
		return nil, errors.New("no upstream driver/dsn supplied")
	case config.LedgerTable == "":
		return nil, errors.New("no ledger table supplied")
	case deriver == nil:
		return nil, errors.New("no deriver supplied")
	case sink == nil:
		return nil, errors.New("no sink supplied")
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 5 * time.Second
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open upstream")
	}

	return &Pump{
		source: &sqlEventSource{
			db:              db,
			ledgerTableName: config.LedgerTable,
			queryBlockSize:  config.QueryBlockSize,
		},
		closers:           []io.Closer{db},
		deriver:           deriver,
		sink:              sink,
		pollInterval:      config.PollInterval,
		pollTimeout:       config.PollTimeout,
		jitterCoefficient: config.PollJitterCoefficient,
		stop:              make(chan struct{}),
	}, nil
}

// Start blocks and pumps events until the context is canceled, Stop
// is called, or an I/O failure occurs.
func (p *Pump) Start(ctx context.Context) error {
	jitr := newJitter()

	var cancel context.CancelFunc
	safeCancel := func() {
		if cancel != nil {
			cancel()
		}
	}

	// Only actually close out the final cancel
	defer safeCancel()

	for {
		// early exit here if the pump should be stopped
		select {
		case <-p.stop:
			events.Log("Pump stopping normally")
			return nil
		default:
		}

		// Need to clean up the cancel for each call of the loop, to avoid
		// leaking context.
		safeCancel()
		var sctx context.Context
		sctx, cancel = context.WithTimeout(ctx, p.pollTimeout)

		stats.Incr("pump.loop_enter")
		ev, err := p.source.Next(sctx)

		if err != nil {
			causeErr := errors.Cause(err)
			if causeErr != context.DeadlineExceeded && causeErr != errNoNewEvents {
				return err
			}

			if causeErr == context.DeadlineExceeded {
				errs.Incr("pump.deadline_exceeded")
			}

			//
			// The sctx deadline will trigger the DeadlineExceeded err, which
			// would happen in the case that the backing store for the source
			// is slow.
			//
			// Otherwise, errNoNewEvents is a positive assertion that
			// no new events have been found.
			//

			pollSleep := jitr.Jitter(p.pollInterval, p.jitterCoefficient)
			events.Debug("Poll sleep %{duration}v", pollSleep)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollSleep):
			}
			continue
		}

		events.Debug("Pump deriving merge info for %{target}s seq=%{seq}d", ev.Target, ev.Sequence)

		info, err := p.deriver.Derive(ev)
		if err != nil {
			// per-event isolation boundary: the event is dropped and
			// the pump keeps going
			stats.Incr("pump.event_dropped", stats.T("kind", merge.KindOf(err).String()))
			continue
		}

		if err := p.sink.WriteJob(*info); err != nil {
			errs.Incr("pump.write_job.error")
			return errors.Wrapf(err, "ledger seq: %d", ev.Sequence)
		}

		stats.Incr("pump.write_job.success")

		// check if the context is done each loop
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			// non-blocking
		}
	}
}

// Stop shuts down the pump loop without canceling its context.
func (p *Pump) Stop() {
	close(p.stop)
}

func (p *Pump) Close() error {
	for _, closer := range p.closers {
		if err := closer.Close(); err != nil {
			events.Log("pump encountered error during close: %{error}s", err)
		}
	}
	return nil
}
