package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/segmentio/conf"
	"github.com/segmentio/errors-go"
	"github.com/segmentio/events/v2"
	_ "github.com/segmentio/events/v2/sigevents"
	"github.com/segmentio/stats/v4"
	"github.com/segmentio/stats/v4/datadog"
	"github.com/segmentio/stats/v4/procstats"
	"github.com/segmentio/stats/v4/prometheus"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/segmentio/go-sqlite3"

	"github.com/segmentio/cdcmerge/pkg/errs"
	"github.com/segmentio/cdcmerge/pkg/event"
	"github.com/segmentio/cdcmerge/pkg/globalstats"
	"github.com/segmentio/cdcmerge/pkg/jobwriter"
	"github.com/segmentio/cdcmerge/pkg/keymap"
	"github.com/segmentio/cdcmerge/pkg/logwriter"
	"github.com/segmentio/cdcmerge/pkg/merge"
	"github.com/segmentio/cdcmerge/pkg/schema"
	sidecarpkg "github.com/segmentio/cdcmerge/pkg/sidecar"
	sourcepkg "github.com/segmentio/cdcmerge/pkg/source"
	"github.com/segmentio/cdcmerge/pkg/utils"
	"github.com/segmentio/cdcmerge/pkg/version"
)

var DebugEnabled = false

type dogstatsdConfig struct {
	Address    string        `conf:"address" help:"Address of the dogstatsd agent that will receive metrics"`
	BufferSize int           `conf:"buffer-size" help:"Size of the statsd metrics buffer" validate:"min=0"`
	FlushEvery time.Duration `conf:"flush-every" help:"Flush AT LEAST this frequently"`
}

// deriverCliConfig is shared by every command that needs to build a
// deriver: the target project, the naming templates, and the optional
// key map bootstrap.
type deriverCliConfig struct {
	ProjectID      string `conf:"project-id" help:"Warehouse project the merge jobs target" validate:"nonzero"`
	StagingDataset string `conf:"staging-dataset" help:"Naming template for the staging dataset" validate:"nonzero"`
	StagingTable   string `conf:"staging-table" help:"Naming template for the staging table" validate:"nonzero"`
	ReplicaDataset string `conf:"replica-dataset" help:"Naming template for the replica dataset" validate:"nonzero"`
	ReplicaTable   string `conf:"replica-table" help:"Naming template for the replica table" validate:"nonzero"`
	JobIDPrefix    string `conf:"job-id-prefix" help:"Prefix for generated merge job ids"`
	KeyMapURL      string `conf:"key-map-url" help:"Bootstraps the key map from an S3 URL (i.e. s3://bucket/key)"`
	KeyMapRegion   string `conf:"key-map-region" help:"If specified, indicates which region the key map S3 bucket lives in"`
}

type pumpCliConfig struct {
	UpstreamDriver        string           `conf:"upstream-driver" help:"Upstream driver name (e.g. sqlite3)" validate:"nonzero"`
	UpstreamDSN           string           `conf:"upstream-dsn" help:"Upstream DSN (e.g. path to file if sqlite3)" validate:"nonzero"`
	UpstreamLedgerTable   string           `conf:"upstream-ledger-table" help:"Table on the upstream to look for the event ledger"`
	QueryBlockSize        int              `conf:"query-block-size" help:"Number of ledger entries to get at once"`
	PollInterval          time.Duration    `conf:"poll-interval" help:"How often to poll the upstream" validate:"nonzero"`
	PollJitterCoefficient float64          `conf:"poll-jitter-coefficient" help:"Coefficient for poll jittering"`
	PollTimeout           time.Duration    `conf:"poll-timeout" help:"How long to poll from the source before canceling"`
	JobLogPath            string           `conf:"job-log-path" help:"Path to the merge job log file" validate:"nonzero"`
	JobLogSize            int              `conf:"job-log-size" help:"Maximum size of the merge job log file"`
	Deriver               deriverCliConfig `conf:"deriver" help:"Deriver configuration"`
	Debug                 bool             `conf:"debug" help:"Turns on debug logging"`
	Dogstatsd             dogstatsdConfig  `conf:"dogstatsd" help:"dogstatsd Configuration"`
	MetricsBind           string           `conf:"metrics-bind" help:"address to serve Prometheus metrics"`
}

type tailCliConfig struct {
	ChangelogPath string           `conf:"changelog-path" help:"Path to the change event log file to tail" validate:"nonzero"`
	Dataset       string           `conf:"dataset" help:"Only derive events for this dataset"`
	Table         string           `conf:"table" help:"Only derive events for this table (requires dataset)"`
	JobLogPath    string           `conf:"job-log-path" help:"Path to the merge job log file" validate:"nonzero"`
	JobLogSize    int              `conf:"job-log-size" help:"Maximum size of the merge job log file"`
	Deriver       deriverCliConfig `conf:"deriver" help:"Deriver configuration"`
	Debug         bool             `conf:"debug" help:"Turns on debug logging"`
	Dogstatsd     dogstatsdConfig  `conf:"dogstatsd" help:"dogstatsd Configuration"`
}

type sidecarCliConfig struct {
	BindAddr    string           `conf:"bind-addr" help:"The address and port to bind on"`
	Application string           `conf:"application" help:"The name of the application that will be using the sidecar"`
	Deriver     deriverCliConfig `conf:"deriver" help:"Deriver configuration"`
	Debug       bool             `conf:"debug" help:"Turns on debug logging"`
	Dogstatsd   dogstatsdConfig  `conf:"dogstatsd" help:"dogstatsd Configuration"`
}

func loadConfig(config interface{}, name string, args []string, help ...string) {
	var usage string

	if len(help) != 0 {
		usage = strings.Join(help, " ")
	}

	conf.LoadWith(config, conf.Loader{
		Name:  "cdcmerge " + name,
		Args:  args,
		Usage: usage,
		Sources: []conf.Source{
			conf.NewEnvSource("CDCMERGE", os.Environ()...),
		},
	})
}

func main() {
	ld := conf.Loader{
		Name: "cdcmerge",
		Args: os.Args[1:],
		Commands: []conf.Command{
			{Name: "version", Help: "Get the cdcmerge version"},
			{Name: "pump", Help: "Poll the upstream event ledger and derive merge jobs"},
			{Name: "tail", Help: "Tail a change event log file and derive merge jobs"},
			{Name: "sidecar", Help: "Run the cdcmerge Sidecar"},
		},
	}

	ctx, cancel := events.WithSignals(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	events.DefaultLogger.EnableDebug = false

	switch cmd, args := conf.LoadWith(nil, ld); cmd {
	case "version":
		fmt.Println(version.Get())
	case "pump":
		pump(ctx, args)
	case "tail":
		tail(ctx, args)
	case "sidecar":
		sidecar(ctx, args)
	default:
		panic("inconceivable")
	}
}

func enableDebug() {
	events.DefaultLogger.EnableDebug = true
	events.DefaultLogger.EnableSource = true
	DebugEnabled = true
}

func defaultDogstatsdConfig() dogstatsdConfig {
	return dogstatsdConfig{
		BufferSize: 1024,
		FlushEvery: 5 * time.Second,
	}
}

func defaultDeriverCLIConfig() deriverCliConfig {
	return deriverCliConfig{
		StagingDataset: "{_metadata_schema}",
		StagingTable:   "{_metadata_table}_staging",
		ReplicaDataset: "{_metadata_schema}",
		ReplicaTable:   "{_metadata_table}",
		JobIDPrefix:    merge.DefaultJobIDPrefix,
	}
}

type dogstatsdOpts struct {
	config            dogstatsdConfig
	statsPrefix       string
	defaultTags       []stats.Tag
	defaultTagFilters []string
	prometheusHandler *prometheus.Handler
}

func configureDogstatsd(ctx context.Context, opts dogstatsdOpts) (dd *datadog.Client, teardown func()) {
	config := opts.config
	if opts.statsPrefix == "" {
		panic("configureDogstatsd: Invalid statsPrefix passed. Stop.")
	}

	if config.Address != "" {
		dd = datadog.NewClientWith(datadog.ClientConfig{
			Address:    config.Address,
			BufferSize: config.BufferSize,
			Filters:    opts.defaultTagFilters,
		})
		stats.Register(dd)

		events.Log("Setup dogstatsd with addr:%{addr}s, buffersize:%{buffersize}d, prefix:%{pfx}s, version:%{version}s",
			config.Address, config.BufferSize, opts.statsPrefix, version.Get())
	}

	if opts.prometheusHandler != nil {
		stats.Register(opts.prometheusHandler)
	}

	if stats.DefaultEngine.Handler != stats.Discard {
		stats.DefaultEngine.Prefix = fmt.Sprintf("cdcmerge.%s", opts.statsPrefix)
		stats.DefaultEngine.Tags = append(stats.DefaultEngine.Tags, stats.Tag{Name: "version", Value: version.Get()})
		for _, t := range opts.defaultTags {
			stats.DefaultEngine.Tags = append(stats.DefaultEngine.Tags, t)
		}
		stats.DefaultEngine.Tags = stats.SortTags(stats.DefaultEngine.Tags) // tags must be sorted

		c := procstats.StartCollector(procstats.NewGoMetrics())

		go utils.CtxLoop(ctx, config.FlushEvery, stats.Flush)
		return dd, func() {
			c.Close()
			stats.Flush()
		}
	}
	// nothing to be done for teardown here
	return dd, func() {}
}

// newDeriver builds a deriver from the CLI config, bootstrapping the
// key map from S3 when a URL is configured. Tables absent from the
// key map fall back to row-embedded key resolution.
func newDeriver(ctx context.Context, cliCfg deriverCliConfig) (*merge.Deriver, error) {
	var opts []merge.DeriverOpt
	if cliCfg.KeyMapURL != "" {
		km, err := keymap.Fetch(ctx, cliCfg.KeyMapURL, cliCfg.KeyMapRegion, nil)
		if err != nil {
			return nil, errors.Wrap(err, "fetch key map")
		}
		events.Log("Loaded key map with %{count}d tables from %{url}s", len(km), cliCfg.KeyMapURL)
		opts = append(opts, merge.WithResolver(keymap.NewStatic(km, schema.RowResolver{})))
	}
	return merge.NewDeriver(merge.Config{
		ProjectID:      cliCfg.ProjectID,
		StagingDataset: cliCfg.StagingDataset,
		StagingTable:   cliCfg.StagingTable,
		ReplicaDataset: cliCfg.ReplicaDataset,
		ReplicaTable:   cliCfg.ReplicaTable,
		JobIDPrefix:    cliCfg.JobIDPrefix,
	}, opts...)
}

func newJobLog(path string, size int) (*jobwriter.MergeJobWriter, error) {
	if err := utils.EnsureDirForFile(path); err != nil {
		return nil, errors.Wrap(err, "ensure job log dir")
	}
	return &jobwriter.MergeJobWriter{
		WriteLine: &logwriter.SizedLogWriter{
			RotateSize: size,
			Path:       path,
			FileMode:   0644,
		},
	}, nil
}

func pump(ctx context.Context, args []string) {
	err := func() error {
		cliCfg := pumpCliConfig{
			UpstreamLedgerTable: "cdc_event_ledger",
			QueryBlockSize:      100,
			PollInterval:        1 * time.Second,
			PollTimeout:         5 * time.Second,
			JobLogSize:          100 * 1024 * 1024,
			Deriver:             defaultDeriverCLIConfig(),
			Dogstatsd:           defaultDogstatsdConfig(),
		}
		loadConfig(&cliCfg, "pump", args)
		if cliCfg.Debug {
			enableDebug()
		}

		var promHandler *prometheus.Handler
		if len(cliCfg.MetricsBind) > 0 {
			promHandler = &prometheus.Handler{}

			http.Handle("/metrics", promHandler)

			go func() {
				events.Log("Serving Prometheus metrics on %s", cliCfg.MetricsBind)
				err := http.ListenAndServe(cliCfg.MetricsBind, nil)
				if err != nil {
					events.Log("Failed to serve Prometheus metrics: %s", err)
				}
			}()
		}
		dd, teardown := configureDogstatsd(ctx, dogstatsdOpts{
			config:            cliCfg.Dogstatsd,
			statsPrefix:       "pump",
			prometheusHandler: promHandler,
		})
		defer teardown()
		if dd != nil {
			globalstats.Initialize(ctx, globalstats.Config{
				AppName:      "cdcmerge-pump",
				StatsHandler: dd,
			})
			defer globalstats.Disable()
		}

		deriver, err := newDeriver(ctx, cliCfg.Deriver)
		if err != nil {
			return errors.Wrap(err, "build deriver")
		}
		sink, err := newJobLog(cliCfg.JobLogPath, cliCfg.JobLogSize)
		if err != nil {
			return errors.Wrap(err, "build job log")
		}
		p, err := sourcepkg.New(sourcepkg.Config{
			Driver:                cliCfg.UpstreamDriver,
			DSN:                   cliCfg.UpstreamDSN,
			LedgerTable:           cliCfg.UpstreamLedgerTable,
			QueryBlockSize:        cliCfg.QueryBlockSize,
			PollInterval:          cliCfg.PollInterval,
			PollTimeout:           cliCfg.PollTimeout,
			PollJitterCoefficient: cliCfg.PollJitterCoefficient,
		}, deriver, sink)
		if err != nil {
			return errors.Wrap(err, "build pump")
		}
		defer p.Close()

		grp, grpCtx := errgroup.WithContext(ctx)
		grp.Go(func() error {
			return p.Start(grpCtx)
		})
		grp.Go(func() error {
			<-grpCtx.Done()
			p.Stop()
			return nil
		})
		return grp.Wait()
	}()
	if err != nil && !errs.IsCanceled(err) {
		events.Log("Fatal Pump error: %{error}+v", err)
		errs.IncrDefault(stats.T("op", "startup"))
	}
}

func tail(ctx context.Context, args []string) {
	err := func() error {
		cliCfg := tailCliConfig{
			JobLogSize: 100 * 1024 * 1024,
			Deriver:    defaultDeriverCLIConfig(),
			Dogstatsd:  defaultDogstatsdConfig(),
		}
		loadConfig(&cliCfg, "tail", args)
		if cliCfg.Debug {
			enableDebug()
		}
		_, teardown := configureDogstatsd(ctx, dogstatsdOpts{
			config:      cliCfg.Dogstatsd,
			statsPrefix: "tail",
		})
		defer teardown()

		deriver, err := newDeriver(ctx, cliCfg.Deriver)
		if err != nil {
			return errors.Wrap(err, "build deriver")
		}
		sink, err := newJobLog(cliCfg.JobLogPath, cliCfg.JobLogSize)
		if err != nil {
			return errors.Wrap(err, "build job log")
		}

		next, closer, err := newChangelogIterator(ctx, cliCfg)
		if err != nil {
			return errors.Wrap(err, "open changelog")
		}
		defer closer()

		for {
			ev, err := next(ctx)
			if err != nil {
				if errs.IsCanceled(err) {
					return nil
				}
				return errors.Wrap(err, "read changelog")
			}
			info, err := deriver.Derive(ev)
			if err != nil {
				// dropped events are already logged and counted by the
				// deriver; move on to the next one.
				continue
			}
			if err := sink.WriteJob(*info); err != nil {
				return errors.Wrap(err, "write job")
			}
		}
	}()
	if err != nil && !errs.IsCanceled(err) {
		events.Log("Fatal Tail error: %{error}+v", err)
		errs.IncrDefault(stats.T("op", "startup"))
	}
}

func newChangelogIterator(ctx context.Context, cliCfg tailCliConfig) (func(context.Context) (event.ChangeEvent, error), func() error, error) {
	if cliCfg.Dataset != "" {
		it, err := event.NewFilteredIterator(ctx, cliCfg.ChangelogPath, cliCfg.Dataset, cliCfg.Table)
		if err != nil {
			return nil, nil, err
		}
		return it.Next, it.Close, nil
	}
	it, err := event.NewIterator(ctx, cliCfg.ChangelogPath)
	if err != nil {
		return nil, nil, err
	}
	return it.Next, it.Close, nil
}

func sidecar(ctx context.Context, args []string) {
	cliCfg := sidecarCliConfig{
		BindAddr:  "0.0.0.0:1331",
		Deriver:   defaultDeriverCLIConfig(),
		Dogstatsd: defaultDogstatsdConfig(),
	}
	loadConfig(&cliCfg, "sidecar", args)
	if cliCfg.Debug {
		enableDebug()
	}
	dd, teardown := configureDogstatsd(ctx, dogstatsdOpts{
		config:            cliCfg.Dogstatsd,
		statsPrefix:       "sidecar",
		defaultTagFilters: []string{},
	})
	defer teardown()
	if dd != nil {
		globalstats.Initialize(ctx, globalstats.Config{
			AppName:      "cdcmerge-sidecar",
			StatsHandler: dd,
		})
		defer globalstats.Disable()
	}
	deriver, err := newDeriver(ctx, cliCfg.Deriver)
	if err != nil {
		events.Log("Fatal error starting sidecar: %{error}+v", err)
		errs.IncrDefault(stats.T("op", "startup"))
		return
	}
	sc, err := sidecarpkg.New(sidecarpkg.Config{
		BindAddr:    cliCfg.BindAddr,
		Deriver:     deriver,
		Application: cliCfg.Application,
	})
	if err != nil {
		events.Log("Fatal error starting sidecar: %{error}+v", err)
		errs.IncrDefault(stats.T("op", "startup"))
		return
	}
	if err := sc.Start(ctx); err != nil && !errs.IsCanceled(err) {
		events.Log("sidecar quit: %v", err)
	}
}
