package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/flowmine/engine/dbopen"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	st, err := OpenMemoryForTest(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.CreateObjectType(context.Background(), ObjectType{Name: "customer", DisplayName: "Customer"}))
	require.NoError(t, st.CreateObjectType(context.Background(), ObjectType{Name: "order", DisplayName: "Order"}))
	return st
}

func TestUpsertObjectInsertThenMergesOnSecondCall(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	obj, err := st.UpsertObject(ctx, "customer", "acme", map[string]any{"tier": "gold"}, false)
	require.NoError(t, err)
	require.Equal(t, "gold", obj.Data["tier"])

	merged, err := st.UpsertObject(ctx, "customer", "acme", map[string]any{"region": "us"}, false)
	require.NoError(t, err)
	require.Equal(t, obj.ID, merged.ID)
	require.Equal(t, "gold", merged.Data["tier"])
	require.Equal(t, "us", merged.Data["region"])

	fetched, err := st.GetObject(ctx, obj.ID)
	require.NoError(t, err)
	require.Equal(t, "acme", fetched.Name)

	found, err := st.ListObjects(ctx, ObjectListFilter{Query: "acme"})
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestUpdateObjectUpdatesFTSShadow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	obj, err := st.UpsertObject(ctx, "customer", "acme", map[string]any{}, false)
	require.NoError(t, err)

	require.NoError(t, st.UpdateObject(ctx, Object{ID: obj.ID, Type: obj.Type, Name: "acme-renamed", Data: obj.Data}))

	found, err := st.ListObjects(ctx, ObjectListFilter{Query: "acme-renamed"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	stale, err := st.ListObjects(ctx, ObjectListFilter{Query: "acme"})
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestDeleteObjectRemovesFTSShadow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	obj, err := st.UpsertObject(ctx, "customer", "acme", map[string]any{}, false)
	require.NoError(t, err)
	require.NoError(t, st.DeleteObject(ctx, obj.ID))

	_, err = st.GetObject(ctx, obj.ID)
	require.Error(t, err)

	found, err := st.ListObjects(ctx, ObjectListFilter{Query: "acme"})
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestCreateStepPersistsEventsAndObjectsAtomically(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	obj, err := st.UpsertObject(ctx, "customer", "acme", map[string]any{}, false)
	require.NoError(t, err)

	created, err := st.CreateStep(ctx, Step{
		Name:      "review",
		Start:     "2026-01-01T00:00:00Z",
		End:       "2026-01-01T00:01:00Z",
		Events:    []EventRef{{BucketID: "b1", EventID: 1}},
		ObjectIDs: []UUID{obj.ID},
	})
	require.NoError(t, err)

	fetched, err := st.GetStep(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, fetched.Events, 1)
	require.Len(t, fetched.ObjectIDs, 1)
}

func TestCreateStepsBatchesIntoOneTransaction(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateSteps(ctx, []Step{
		{Name: "a", Start: "2026-01-01T00:00:00Z", End: "2026-01-01T00:01:00Z"},
		{Name: "b", Start: "2026-01-01T00:01:00Z", End: "2026-01-01T00:02:00Z"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	all, err := st.ListSteps(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestCreateWorkflowRejectsShortPattern(t *testing.T) {
	st := newTestStore(t)
	_, err := st.CreateWorkflow(context.Background(), Workflow{Pattern: []PatternStep{{Label: "a"}}})
	require.Error(t, err)
}

func TestCreateOccurrenceActivatesDraftWorkflow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	step, err := st.CreateStep(ctx, Step{Name: "a", Start: "2026-01-01T00:00:00Z", End: "2026-01-01T00:01:00Z"})
	require.NoError(t, err)

	wf, err := st.CreateWorkflow(ctx, Workflow{
		Pattern: []PatternStep{{Label: "a"}, {Label: "b"}},
	})
	require.NoError(t, err)
	require.Equal(t, WorkflowDraft, wf.State)

	_, err = st.CreateOccurrence(ctx, Occurrence{
		WorkflowID: wf.ID,
		CaseID:     "b1#0",
		Steps:      []OccurrenceStepInstance{{Position: 0, StepID: step.ID}},
		Start:      step.Start,
		End:        step.End,
	})
	require.NoError(t, err)

	activated, err := st.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Equal(t, WorkflowActive, activated.State)
}

func TestPersistReconciliationCommitsWorkflowsAndOccurrencesTogether(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	step, err := st.CreateStep(ctx, Step{Name: "a", Start: "2026-01-01T00:00:00Z", End: "2026-01-01T00:01:00Z"})
	require.NoError(t, err)

	draft := Workflow{ID: NewUUID(), Pattern: []PatternStep{{Label: "a"}, {Label: "b"}}}
	occ := Occurrence{
		WorkflowID: draft.ID,
		CaseID:     "b1#0",
		Steps:      []OccurrenceStepInstance{{Position: 0, StepID: step.ID}},
		Start:      step.Start,
		End:        step.End,
	}

	createdWFs, createdOccs, err := st.PersistReconciliation(ctx, []Workflow{draft}, []Occurrence{occ})
	require.NoError(t, err)
	require.Len(t, createdWFs, 1)
	require.Len(t, createdOccs, 1)

	wf, err := st.GetWorkflow(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, WorkflowActive, wf.State)
}

func TestCreateExtractionRuleIsSearchableViaFTS(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rule, err := st.CreateExtractionRule(ctx, ExtractionRule{
		Name:       "order-number",
		ObjectType: "order",
		Pattern:    `#(?P<num>\d+)`,
	})
	require.NoError(t, err)

	found, err := st.ListExtractionRules(ctx, "order-number")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, rule.ID, found[0].ID)

	rule.Name = "order-num-renamed"
	require.NoError(t, st.UpdateExtractionRule(ctx, *rule))
	renamed, err := st.ListExtractionRules(ctx, "order-num-renamed")
	require.NoError(t, err)
	require.Len(t, renamed, 1)

	require.NoError(t, st.DeleteExtractionRule(ctx, rule.ID))
	gone, err := st.ListExtractionRules(ctx, "order-num-renamed")
	require.NoError(t, err)
	require.Empty(t, gone)
}
