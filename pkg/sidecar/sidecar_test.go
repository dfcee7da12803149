package sidecar

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/segmentio/cdcmerge/pkg/event"
	"github.com/segmentio/cdcmerge/pkg/merge"
	"github.com/segmentio/cdcmerge/pkg/utils"
	"github.com/stretchr/testify/require"
)

func newTestSidecar(t *testing.T) *Sidecar {
	deriver, err := merge.NewDeriver(merge.Config{
		ProjectID:      "analytics-prod",
		StagingDataset: "{_metadata_schema}",
		StagingTable:   "{_metadata_table}_staging",
		ReplicaDataset: "{_metadata_schema}",
		ReplicaTable:   "{_metadata_table}",
	})
	require.NoError(t, err)
	sc, err := New(Config{Deriver: deriver})
	require.NoError(t, err)
	return sc
}

func TestSidecarRequiresDeriver(t *testing.T) {
	_, err := New(Config{})
	require.EqualError(t, err, "no deriver supplied")
}

func TestDeriveOK(t *testing.T) {
	sc := newTestSidecar(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/derive", utils.NewJsonReader(DeriveRequest{
		Dataset: "sales",
		Table:   "orders",
		Row: map[string]interface{}{
			event.MetadataStream:      "orders-stream",
			event.MetadataSchema:      "sales",
			event.MetadataTable:       "orders",
			event.MetadataSourceType:  "mysql",
			event.MetadataPrimaryKeys: []interface{}{"order_id"},
			event.MetadataTimestamp:   "1700000000",
			event.MetadataLogFile:     "binlog.000042",
			event.MetadataLogPosition: "1337",
			"order_id":                "o-1",
		},
	}))
	sc.ServeHTTP(w, r)
	require.EqualValues(t, http.StatusOK, w.Code, w.Body.String())
	var res DeriveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.False(t, res.Dropped)
	require.NotNil(t, res.MergeInfo)
	require.Equal(t, "analytics-prod", res.MergeInfo.ProjectID)
	require.Equal(t, []string{"order_id"}, res.MergeInfo.PrimaryKeys)
	require.Equal(t, "analytics-prod.sales.orders_staging", res.MergeInfo.StagingTable.String())
	require.Equal(t, "analytics-prod.sales.orders", res.MergeInfo.ReplicaTable.String())
	require.NotEmpty(t, res.MergeInfo.JobID)
}

func TestDeriveUnmergeable(t *testing.T) {
	sc := newTestSidecar(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/derive", utils.NewJsonReader(DeriveRequest{
		Dataset: "sales",
		Table:   "no_pk_table",
		Row: map[string]interface{}{
			event.MetadataStream: "orders-stream",
			event.MetadataSchema: "sales",
			event.MetadataTable:  "no_pk_table",
		},
	}))
	sc.ServeHTTP(w, r)
	require.EqualValues(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	var res DeriveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.True(t, res.Dropped)
	require.Equal(t, "unmergeable", res.Kind)
	require.Nil(t, res.MergeInfo)
}

func TestDeriveBadBody(t *testing.T) {
	sc := newTestSidecar(t)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/derive", utils.NewJsonReader("not an object"))
	sc.ServeHTTP(w, r)
	require.EqualValues(t, http.StatusBadRequest, w.Code, w.Body.String())
}

func TestForegoneMerges(t *testing.T) {
	sc := newTestSidecar(t)

	// drive one unmergeable event through so the counter is nonzero
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/derive", utils.NewJsonReader(DeriveRequest{
		Dataset: "sales",
		Table:   "no_pk_table",
		Row: map[string]interface{}{
			event.MetadataSchema: "sales",
			event.MetadataTable:  "no_pk_table",
		},
	}))
	sc.ServeHTTP(w, r)
	require.EqualValues(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/foregone-merges", nil)
	sc.ServeHTTP(w, r)
	require.EqualValues(t, http.StatusOK, w.Code, w.Body.String())
	var res map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	value, ok := res["value"].(float64)
	require.True(t, ok, "value not a float64, it is a %T", res["value"])
	require.EqualValues(t, 1, value)
}

func TestHealthcheck(t *testing.T) {
	sc := newTestSidecar(t)
	for _, path := range []string{"/healthcheck", "/ping"} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, path, nil)
		sc.ServeHTTP(w, r)
		require.EqualValues(t, http.StatusOK, w.Code, w.Body.String())
	}
}
