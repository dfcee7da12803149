package sidecar

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/segmentio/cdcmerge/pkg/errs"
	"github.com/segmentio/cdcmerge/pkg/event"
	"github.com/segmentio/cdcmerge/pkg/merge"
	"github.com/segmentio/errors-go"
	"github.com/segmentio/stats/v4"
	"github.com/segmentio/stats/v4/httpstats"
)

type (
	// Sidecar exposes the deriver over HTTP so that operators and
	// non-Go applications can derive merge info for a single event and
	// inspect the foregone-merges counter.
	Sidecar struct {
		bindAddr string
		deriver  Deriver
		handler  http.Handler
	}
	Config struct {
		BindAddr    string
		Deriver     Deriver
		Application string
	}
	Deriver interface {
		Derive(ev event.ChangeEvent) (*merge.MergeInfo, error)
		ForegoneMerges() int64
	}
	// DeriveRequest is the body of a POST /derive request.
	DeriveRequest struct {
		Dataset string                 `json:"dataset"`
		Table   string                 `json:"table"`
		Row     map[string]interface{} `json:"row"`
	}
	// DeriveResponse reports either the derived descriptor or why the
	// event was dropped.
	DeriveResponse struct {
		MergeInfo *merge.MergeInfo `json:"merge_info,omitempty"`
		Dropped   bool             `json:"dropped,omitempty"`
		Kind      string           `json:"kind,omitempty"`
		Error     string           `json:"error,omitempty"`
	}
)

func New(config Config) (*Sidecar, error) {
	if config.Deriver == nil {
		return nil, errors.New("no deriver supplied")
	}
	sidecar := &Sidecar{
		bindAddr: config.BindAddr,
		deriver:  config.Deriver,
	}
	mux := mux.NewRouter()
	handleErr := func(fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			err := fn(w, r)
			if err != nil {
				http.Error(w, err.Error(), errs.StatusCode(err))
			}
		}
	}
	mux.HandleFunc("/derive", handleErr(sidecar.derive)).Methods("POST")
	mux.HandleFunc("/foregone-merges", handleErr(sidecar.foregoneMerges)).Methods("GET")
	mux.HandleFunc("/healthcheck", handleErr(sidecar.healthcheck)).Methods("GET")
	mux.HandleFunc("/ping", handleErr(sidecar.healthcheck)).Methods("GET")

	application := orUnknown(config.Application)
	stats.DefaultEngine.Tags = append(stats.DefaultEngine.Tags, stats.T("application", application))
	stats.DefaultEngine.Tags = stats.SortTags(stats.DefaultEngine.Tags) // tags must be sorted

	sidecar.handler = sidecar.statsHandler(mux)

	return sidecar, nil
}

func (s *Sidecar) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.bindAddr,
		Handler:      s,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		ErrorLog:     log.New(os.Stderr, "SRV ERR:", log.LstdFlags),
	}
	defer srv.Close()
	err := srv.ListenAndServe()
	return errors.Wrap(err, "listen and serve")
}

func (s *Sidecar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Sidecar) statsHandler(delegate http.Handler) http.Handler {
	return httpstats.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := orUnknown(r.UserAgent())
		stats.Incr("requests-by-user-agent", stats.T("user-agent", ua))
		delegate.ServeHTTP(w, r)
	}))
}

func (s *Sidecar) derive(w http.ResponseWriter, r *http.Request) error {
	var dr DeriveRequest
	if err := json.NewDecoder(r.Body).Decode(&dr); err != nil {
		return errs.BadRequest("decode body: %s", err)
	}
	ev := event.ChangeEvent{
		Target: event.TableID{Dataset: dr.Dataset, Table: dr.Table},
		Row:    dr.Row,
	}
	info, err := s.deriver.Derive(ev)
	if err != nil {
		kind := merge.KindOf(err)
		if kind == 0 {
			return err
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		return json.NewEncoder(w).Encode(DeriveResponse{
			Dropped: true,
			Kind:    kind.String(),
			Error:   err.Error(),
		})
	}
	return json.NewEncoder(w).Encode(DeriveResponse{MergeInfo: info})
}

func (s *Sidecar) foregoneMerges(w http.ResponseWriter, r *http.Request) error {
	res := map[string]interface{}{
		"value": s.deriver.ForegoneMerges(),
	}
	return json.NewEncoder(w).Encode(res)
}

func (s *Sidecar) healthcheck(w http.ResponseWriter, r *http.Request) error {
	// the deriver has no backing resources to probe; being able to
	// answer at all is the health signal.
	return nil
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
