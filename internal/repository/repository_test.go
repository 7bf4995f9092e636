package repository

import (
	"context"
	"testing"
	"time"

	"crm-service/internal/model"
	"crm-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRepo() (*Repository, *store.MemStore) {
	s := store.NewMemStore()
	return New(s, zap.NewNop()), s
}

func seedLead(t *testing.T, repo *Repository, tenantID, id string, lead model.Lead) model.Lead {
	t.Helper()
	lead.ID = id
	created, err := repo.Leads(tenantID).Insert(context.Background(), lead)
	require.NoError(t, err)
	return created
}

func TestRepository_TenantIsolation(t *testing.T) {
	repo, _ := testRepo()
	ctx := context.Background()

	seedLead(t, repo, "tenant-a", "lead-1", model.Lead{Name: "Ada", Status: model.LeadNew})
	seedLead(t, repo, "tenant-b", "lead-2", model.Lead{Name: "Bob", Status: model.LeadNew})

	// tenant-b's accessor cannot see tenant-a's lead, by id or by query
	_, _, err := repo.Leads("tenant-b").Get(ctx, "lead-1")
	assert.ErrorIs(t, err, model.ErrNotFound)

	leads, _, err := repo.Leads("tenant-b").Page(ctx, store.Query{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "lead-2", leads[0].ID)

	// Inserting through a scope stamps the scope's tenant onto the record
	got, _, err := repo.Leads("tenant-a").Get(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", got.TenantID)
}

func TestRepository_FilterSanitization(t *testing.T) {
	repo, _ := testRepo()
	ctx := context.Background()

	seedLead(t, repo, "tenant-a", "lead-1", model.Lead{Name: "Ada", Status: model.LeadNew})

	// A filter naming a foreign tenant is rejected outright
	_, _, err := repo.Leads("tenant-a").Page(ctx, store.Query{
		Filter: store.Filter{Equals: map[string]string{"tenant_id": "tenant-b"}},
	})
	assert.ErrorIs(t, err, model.ErrCrossTenantAccess)

	// Naming the scope's own tenant is redundant and stripped, not rejected
	leads, _, err := repo.Leads("tenant-a").Page(ctx, store.Query{
		Filter: store.Filter{Equals: map[string]string{"tenant_id": "tenant-a"}},
	})
	require.NoError(t, err)
	assert.Len(t, leads, 1)

	// Stripping tenant_id leaves a single-predicate filter serviceable
	leads, _, err = repo.Leads("tenant-a").Page(ctx, store.Query{
		Filter: store.Filter{Equals: map[string]string{"tenant_id": "tenant-a", "status": "new"}},
	})
	require.NoError(t, err)
	assert.Len(t, leads, 1)
}

func TestRepository_UpdateConflictPassesThrough(t *testing.T) {
	repo, _ := testRepo()
	ctx := context.Background()

	lead := seedLead(t, repo, "tenant-a", "lead-1", model.Lead{Name: "Ada", Status: model.LeadNew})

	_, rev, err := repo.Leads("tenant-a").Get(ctx, "lead-1")
	require.NoError(t, err)

	lead.Status = model.LeadContacted
	_, _, err = repo.Leads("tenant-a").Update(ctx, lead, rev)
	require.NoError(t, err)

	// The stale revision conflicts; the raw store error reaches the caller so
	// lifecycle guard loops can distinguish it from a hard failure.
	_, _, err = repo.Leads("tenant-a").Update(ctx, lead, rev)
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestRepository_PatchMergesPerField(t *testing.T) {
	repo, _ := testRepo()
	ctx := context.Background()

	seedLead(t, repo, "tenant-a", "lead-1", model.Lead{Name: "Ada", Status: model.LeadNew})
	scope := repo.Scope("tenant-a", store.KindLeads)

	// Two patches to disjoint fields both land
	_, err := scope.Patch(ctx, "lead-1", map[string]any{"status": "contacted"})
	require.NoError(t, err)
	_, err = scope.Patch(ctx, "lead-1", map[string]any{"assigned_to": "user-7"})
	require.NoError(t, err)

	lead, _, err := repo.Leads("tenant-a").Get(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, model.LeadContacted, lead.Status)
	assert.Equal(t, "user-7", lead.AssignedTo)
	assert.Equal(t, "Ada", lead.Name)

	_, err = scope.Patch(ctx, "missing", map[string]any{"status": "contacted"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// flakyStore fails every call with ErrUnavailable until failures runs out.
type flakyStore struct {
	store.Store
	failures int
	calls    int
}

func (f *flakyStore) Get(ctx context.Context, tenantID string, kind store.Kind, id string) (store.Document, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return store.Document{}, store.ErrUnavailable
	}
	return f.Store.Get(ctx, tenantID, kind, id)
}

func TestRepository_RetriesUnavailableStore(t *testing.T) {
	mem := store.NewMemStore()
	flaky := &flakyStore{Store: mem, failures: 2}
	repo := New(flaky, zap.NewNop())
	ctx := context.Background()

	seedLead(t, repo, "tenant-a", "lead-1", model.Lead{Name: "Ada", Status: model.LeadNew})

	// Two outages then success: the retry loop absorbs them
	start := time.Now()
	lead, _, err := repo.Leads("tenant-a").Get(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", lead.Name)
	assert.Equal(t, 3, flaky.calls)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond) // 50ms + 100ms backoff

	// A persistent outage exhausts the attempts and surfaces as unavailability
	flaky.failures = 100
	_, _, err = repo.Leads("tenant-a").Get(ctx, "lead-1")
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
}

func TestRepository_UsersFindByEmail(t *testing.T) {
	repo, _ := testRepo()
	ctx := context.Background()

	_, err := repo.Users("tenant-a").Insert(ctx, model.User{
		ID: "user-1", Email: "ada@acme.test", Role: model.RoleManager, Status: model.UserActive,
	})
	require.NoError(t, err)

	user, err := repo.Users("tenant-a").FindByEmail(ctx, "ada@acme.test")
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)

	// Email lookup is tenant-scoped like everything else
	_, err = repo.Users("tenant-b").FindByEmail(ctx, "ada@acme.test")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
