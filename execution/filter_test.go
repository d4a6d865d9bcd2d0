package execution

import (
	"context"
	"testing"
	"time"

	scriptdesk "github.com/goliatone/go-scriptdesk"
	"github.com/goliatone/go-scriptdesk/access"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin   = access.User{ID: "1", Name: "Admin User", Role: access.RoleAdmin, Permissions: access.DefaultCapabilities(access.RoleAdmin)}
	regular = access.User{ID: "2", Name: "Regular User", Role: access.RoleUser, Permissions: access.DefaultCapabilities(access.RoleUser)}
)

func seededStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := NewStore(ctx, nil)
	require.NoError(t, err)

	recs := []Record{
		newRecord("1", "Regular User", StatusPendingApproval),
		newRecord("2", "Admin User", StatusPendingApproval),
		newRecord("3", "Regular User", StatusCompleted),
		newRecord("4", "Someone Else", StatusPendingApproval),
	}
	recs[2].ApprovedBy = "Admin User"
	recs[3].ScriptName = "Data Export"
	for _, r := range recs {
		_, err := store.Add(ctx, r)
		require.NoError(t, err)
	}
	return store
}

func ids(recs []Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

func TestFilterPendingByViewer(t *testing.T) {
	store := seededStore(t)

	asUser := store.Filter(And(ByStatus(StatusPendingApproval), VisibleTo(regular)))
	assert.Equal(t, []string{"1"}, ids(asUser))

	asAdmin := store.Filter(And(ByStatus(StatusPendingApproval), VisibleTo(admin)))
	assert.Equal(t, []string{"1", "2", "4"}, ids(asAdmin))
}

func TestAndIgnoresNilPredicates(t *testing.T) {
	store := seededStore(t)
	assert.Len(t, store.Filter(And(nil, nil)), 4)
	assert.Equal(t, []string{"3"}, ids(store.Filter(And(nil, ByStatus(StatusCompleted)))))
}

func TestDashboardFilter(t *testing.T) {
	store := seededStore(t)

	tests := []struct {
		name   string
		filter DashboardFilter
		viewer access.User
		want   []string
	}{
		{"blank matches everything visible", DashboardFilter{}, admin, []string{"1", "2", "3", "4"}},
		{"blank respects ownership", DashboardFilter{}, regular, []string{"1", "3"}},
		{"script name is case insensitive", DashboardFilter{ScriptName: "data EXPORT"}, admin, []string{"4"}},
		{"requester substring", DashboardFilter{RequestedBy: "regular"}, admin, []string{"1", "3"}},
		{"approver requires a value", DashboardFilter{ApprovedBy: "admin"}, admin, []string{"3"}},
		{"status is exact", DashboardFilter{Status: StatusCompleted}, admin, []string{"3"}},
		{"id substring", DashboardFilter{ID: "4"}, admin, []string{"4"}},
		{"execution name", DashboardFilter{ExecutionName: "NIGHTLY 2"}, admin, []string{"2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := store.Filter(tt.filter.Predicate(tt.viewer))
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestDashboardFilterTimeBounds(t *testing.T) {
	ctx := context.Background()
	store := seededStore(t)
	end := baseTime.Add(time.Minute)
	_, _, err := store.Update(ctx, "3", Patch{}.WithEndTime(end))
	require.NoError(t, err)

	before := baseTime.Add(-time.Hour)
	after := baseTime.Add(time.Hour)

	assert.Len(t, store.Filter(DashboardFilter{StartedAfter: &before}.Predicate(admin)), 4)
	assert.Empty(t, store.Filter(DashboardFilter{StartedAfter: &after}.Predicate(admin)))
	assert.Equal(t, []string{"3"}, ids(store.Filter(DashboardFilter{EndedBefore: &after}.Predicate(admin))))
	assert.Empty(t, store.Filter(DashboardFilter{EndedBefore: &before}.Predicate(admin)))
}

func TestJQPredicate(t *testing.T) {
	store := seededStore(t)

	pred, err := JQ(`.status == "pending_approval" and .requestedBy != "Admin User"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "4"}, ids(store.Filter(pred)))

	pred, err = JQ(`.inputs.hosts | any(. == "web-2")`)
	require.NoError(t, err)
	assert.Len(t, store.Filter(pred), 4)

	pred, err = JQ(`.inputs.items[0].sku`)
	require.NoError(t, err)
	assert.Len(t, store.Filter(pred), 4, "non-null non-false results match")

	pred, err = JQ(`.result`)
	require.NoError(t, err)
	assert.Empty(t, store.Filter(pred), "null results reject")

	pred, err = JQ("")
	require.NoError(t, err)
	assert.Len(t, store.Filter(pred), 4)

	_, err = JQ(`.status ==`)
	assert.True(t, scriptdesk.HasCode(err, scriptdesk.CodeValidationFailed))
}
