package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/flowmine/engine/dbopen"
	"github.com/flowmine/engine/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	st, err := store.OpenMemoryForTest(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestExtractEventUpsertsObjectAndLinksEvent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	err := st.CreateObjectType(ctx, store.ObjectType{Name: "purchase_order", DisplayName: "Purchase Order"})
	require.NoError(t, err)

	rule, err := st.CreateExtractionRule(ctx, store.ExtractionRule{
		Name:         "po-number",
		ObjectType:   "purchase_order",
		SourceFields: []string{"title"},
		Pattern:      `PO-(?P<num>\d+)`,
		NameTemplate: "PO-{num}",
		DataMapping:  map[string]string{"number": "num"},
		Enabled:      true,
		Priority:     10,
	})
	require.NoError(t, err)

	ev := store.Event{
		BucketID:  "b1",
		ID:        1,
		Timestamp: "2026-01-01T00:00:00Z",
		Data:      map[string]any{"title": "Review PO-4821 for approval"},
	}
	require.NoError(t, st.IngestEvent(ctx, ev))

	eng := NewEngine(st)
	require.NoError(t, eng.Reload(ctx))
	require.NoError(t, eng.ExtractEvent(ctx, ev))

	objs, err := st.ListObjects(ctx, store.ObjectListFilter{Type: "purchase_order"})
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, "PO-4821", objs[0].Name)
	require.Equal(t, "4821", objs[0].Data["number"])

	links, err := st.ObjectsForEvent(ctx, "b1", 1)
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, store.RuleProvenance(rule.ID), links[0].Provenance)

	got, err := st.GetExtractionRule(ctx, rule.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.MatchCount)
}

func TestExtractEventMultipleNonOverlappingMatches(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	err := st.CreateObjectType(ctx, store.ObjectType{Name: "ticket", DisplayName: "Ticket"})
	require.NoError(t, err)

	_, err = st.CreateExtractionRule(ctx, store.ExtractionRule{
		Name:         "ticket-id",
		ObjectType:   "ticket",
		SourceFields: []string{"title"},
		Pattern:      `TCK-(?P<num>\d+)`,
		NameTemplate: "TCK-{num}",
		DataMapping:  map[string]string{},
		Enabled:      true,
		Priority:     1,
	})
	require.NoError(t, err)

	ev := store.Event{
		BucketID:  "b1",
		ID:        2,
		Timestamp: "2026-01-01T00:00:01Z",
		Data:      map[string]any{"title": "Linked to TCK-1 and TCK-2"},
	}
	require.NoError(t, st.IngestEvent(ctx, ev))

	eng := NewEngine(st)
	require.NoError(t, eng.Reload(ctx))
	require.NoError(t, eng.ExtractEvent(ctx, ev))

	objs, err := st.ListObjects(ctx, store.ObjectListFilter{Type: "ticket"})
	require.NoError(t, err)
	require.Len(t, objs, 2)
}

func TestConfirmIncreasesConfidence(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	err := st.CreateObjectType(ctx, store.ObjectType{Name: "invoice", DisplayName: "Invoice"})
	require.NoError(t, err)
	rule, err := st.CreateExtractionRule(ctx, store.ExtractionRule{
		Name: "inv", ObjectType: "invoice", SourceFields: []string{"title"},
		Pattern: `INV-(?P<num>\d+)`, NameTemplate: "INV-{num}",
		DataMapping: map[string]string{}, Enabled: true, Priority: 0,
	})
	require.NoError(t, err)

	ev := store.Event{BucketID: "b1", ID: 3, Timestamp: "2026-01-01T00:00:02Z",
		Data: map[string]any{"title": "INV-77"}}
	require.NoError(t, st.IngestEvent(ctx, ev))

	eng := NewEngine(st)
	require.NoError(t, eng.Reload(ctx))
	require.NoError(t, eng.ExtractEvent(ctx, ev))

	objs, err := st.ListObjects(ctx, store.ObjectListFilter{Type: "invoice"})
	require.NoError(t, err)
	require.Len(t, objs, 1)

	require.NoError(t, eng.Confirm(ctx, "b1", 3, objs[0].ID))

	got, err := st.GetExtractionRule(ctx, rule.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.55, got.Confidence, 1e-9)
	require.Equal(t, 1, got.ConfirmCount)
}

func TestRejectDemotesRuleBelowRatioThreshold(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	err := st.CreateObjectType(ctx, store.ObjectType{Name: "invoice", DisplayName: "Invoice"})
	require.NoError(t, err)
	rule, err := st.CreateExtractionRule(ctx, store.ExtractionRule{
		Name: "inv", ObjectType: "invoice", SourceFields: []string{"title"},
		Pattern: `INV-(?P<num>\d+)`, NameTemplate: "INV-{num}",
		DataMapping: map[string]string{}, Enabled: true, Priority: 0,
	})
	require.NoError(t, err)

	eng := NewEngine(st)
	obj, err := st.UpsertObject(ctx, "invoice", "INV-1", nil, false)
	require.NoError(t, err)
	require.NoError(t, st.LinkEventToObject(ctx, "b1", 9, obj.ID, store.RuleProvenance(rule.ID), 0.5))

	for i := 0; i < 10; i++ {
		require.NoError(t, eng.Reject(ctx, "b1", 9, obj.ID))
	}

	got, err := st.GetExtractionRule(ctx, rule.ID)
	require.NoError(t, err)
	require.False(t, got.Enabled)
	require.Equal(t, 10, got.RejectCount)
}

func TestCorrectProposesLearnedRuleAfterThreeCorrections(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	err := st.CreateObjectType(ctx, store.ObjectType{Name: "ticket", DisplayName: "Ticket"})
	require.NoError(t, err)
	err = st.CreateObjectType(ctx, store.ObjectType{Name: "order", DisplayName: "Order"})
	require.NoError(t, err)

	rule, err := st.CreateExtractionRule(ctx, store.ExtractionRule{
		Name: "ticket-id", ObjectType: "ticket", SourceFields: []string{"title"},
		Pattern: `TCK-(?P<num>\d+)`, NameTemplate: "TCK-{num}",
		DataMapping: map[string]string{}, Enabled: true, Priority: 0,
	})
	require.NoError(t, err)

	eng := NewEngine(st)
	for i := 0; i < 3; i++ {
		obj, err := st.UpsertObject(ctx, "ticket", "TCK-bad", nil, false)
		require.NoError(t, err)
		require.NoError(t, st.LinkEventToObject(ctx, "b1", int64(i), obj.ID, store.RuleProvenance(rule.ID), 0.5))

		_, err = eng.Correct(ctx, "b1", int64(i), obj.ID, "order", "ORD-99", nil, "ORD-99 confirmed")
		require.NoError(t, err)
	}

	rules, err := st.ListExtractionRules(ctx, "")
	require.NoError(t, err)
	var found bool
	for _, r := range rules {
		if r.Provenance == store.ProvenanceLearned {
			found = true
			require.False(t, r.Enabled)
			require.Equal(t, "order", r.ObjectType)
		}
	}
	require.True(t, found, "expected a learned rule to be proposed")
}

func TestGeneralizePattern(t *testing.T) {
	got := generalizePattern("ORD-12345")
	require.Equal(t, `(?P<match>[A-Z]+-\d+)`, got)
}
