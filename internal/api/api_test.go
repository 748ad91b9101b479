package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/flowmine/engine/dbopen"
	"github.com/flowmine/engine/internal/extract"
	"github.com/flowmine/engine/internal/orchestrator"
	"github.com/flowmine/engine/internal/store"
)

func newTestAPI(t *testing.T) (*API, *store.Store) {
	t.Helper()
	db := dbopen.OpenMemory(t)
	st, err := store.OpenMemoryForTest(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	extractor := extract.NewEngine(st)
	require.NoError(t, extractor.Reload(context.Background()))
	orch := orchestrator.New(st, extractor, nil, 120*time.Second, 60*time.Second, 2)

	a := New(API{Store: st, Extractor: extractor, Orchestrator: orch})
	return a, st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestObjectTypeCreateGetDelete(t *testing.T) {
	a, _ := newTestAPI(t)
	router := NewRouter(a, 0)

	rec := doJSON(t, router, http.MethodPost, "/api/0/object-types", objectTypeBody{
		Name:        "purchase_order",
		DisplayName: "Purchase Order",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/0/object-types/purchase_order", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got objectTypeBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "Purchase Order", got.DisplayName)

	rec = doJSON(t, router, http.MethodDelete, "/api/0/object-types/purchase_order", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/0/object-types/purchase_order", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObjectCreateAndListFiltersByType(t *testing.T) {
	a, _ := newTestAPI(t)
	router := NewRouter(a, 0)

	require.NoError(t, a.Store.CreateObjectType(context.Background(), store.ObjectType{Name: "invoice"}))

	rec := doJSON(t, router, http.MethodPost, "/api/0/objects", objectBody{
		Type: "invoice",
		Name: "INV-100",
		Data: map[string]any{"amount": "42"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/0/objects?type=invoice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []objectBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "INV-100", got[0].Name)
}

func TestExtractionRuleTestEndpointDoesNotPersist(t *testing.T) {
	a, st := newTestAPI(t)
	router := NewRouter(a, 0)

	require.NoError(t, st.CreateObjectType(context.Background(), store.ObjectType{Name: "invoice"}))
	created, err := st.CreateExtractionRule(context.Background(), store.ExtractionRule{
		Name:         "invoice-number",
		ObjectType:   "invoice",
		SourceFields: []string{"title"},
		Pattern:      `INV-(?P<num>\d+)`,
		NameTemplate: "{num}",
		Enabled:      true,
	})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/0/extraction-rules/"+created.ID.String()+"/test", testRuleRequest{
		Samples: []extract.Sample{{Title: "Paid INV-100 today"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var got []testRuleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.True(t, got[0].Match)
	require.Equal(t, "100", got[0].Name)

	objs, err := st.ListObjects(context.Background(), store.ObjectListFilter{Type: "invoice"})
	require.NoError(t, err)
	require.Empty(t, objs)
}

func TestJobNotFoundReturns404(t *testing.T) {
	a, _ := newTestAPI(t)
	router := NewRouter(a, 0)

	rec := doJSON(t, router, http.MethodGet, "/api/0/jobs/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMinePatternsSynchronousReturnsPatterns(t *testing.T) {
	a, st := newTestAPI(t)
	router := NewRouter(a, 0)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var id int64
	seed := func(caseStart time.Time, apps []string) {
		for i, app := range apps {
			id++
			ts := caseStart.Add(time.Duration(i*10) * time.Second)
			require.NoError(t, st.IngestEvent(context.Background(), store.Event{
				BucketID:  "b1",
				ID:        id,
				Timestamp: ts.UTC().Format(time.RFC3339),
				Duration:  5,
				Data:      map[string]any{"app": app},
			}))
		}
	}
	for i := 0; i < 3; i++ {
		seed(base.Add(time.Duration(i)*time.Hour), []string{"chrome", "excel"})
	}

	rec := doJSON(t, router, http.MethodPost, "/api/0/mining/patterns", rangeRequest{
		Bucket:     "b1",
		Start:      "2026-01-01T00:00:00Z",
		End:        "2026-01-01T10:00:00Z",
		MinSupport: 0.5,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var got []patternBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotEmpty(t, got)
}

func TestStatsReflectsCreatedEntities(t *testing.T) {
	a, st := newTestAPI(t)
	router := NewRouter(a, 0)

	require.NoError(t, st.CreateObjectType(context.Background(), store.ObjectType{Name: "invoice"}))

	rec := doJSON(t, router, http.MethodGet, "/api/0/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got statsBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 1, got.ObjectTypes)
}
