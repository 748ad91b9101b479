package seed

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

func TestDefaultParses(t *testing.T) {
	d, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, d.ObjectTypes)
	require.NotEmpty(t, d.ExtractionRules)

	names := make(map[string]bool, len(d.ObjectTypes))
	for _, ot := range d.ObjectTypes {
		names[ot.Name] = true
	}
	for _, want := range []string{"purchase_order", "order", "invoice", "shipment", "product", "customer", "supplier", "task", "ledger_entry"} {
		require.True(t, names[want], "missing object type %q", want)
	}
}

func TestIsEmptyAndApply(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	empty, err := IsEmpty(ctx, st)
	require.NoError(t, err)
	require.True(t, empty)

	d, err := Default()
	require.NoError(t, err)
	require.NoError(t, Apply(ctx, st, d))

	empty, err = IsEmpty(ctx, st)
	require.NoError(t, err)
	require.False(t, empty)

	types, err := st.ListObjectTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, len(d.ObjectTypes))

	rules, err := st.ListExtractionRules(ctx, "")
	require.NoError(t, err)
	require.Len(t, rules, len(d.ExtractionRules))
}

func TestApplyIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	d, err := Default()
	require.NoError(t, err)
	require.NoError(t, Apply(ctx, st, d))
	require.NoError(t, Apply(ctx, st, d))

	rules, err := st.ListExtractionRules(ctx, "")
	require.NoError(t, err)
	require.Len(t, rules, len(d.ExtractionRules))

	types, err := st.ListObjectTypes(ctx)
	require.NoError(t, err)
	require.Len(t, types, len(d.ObjectTypes))
}
