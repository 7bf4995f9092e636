package view

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"crm-service/internal/model"
	"crm-service/internal/repository"
	"crm-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var manager = model.Principal{ID: "user-mgr", TenantID: "tenant-a", Role: model.RoleManager}

func newFixture(t *testing.T) (*Coordinator, *repository.Repository) {
	t.Helper()
	repo := repository.New(store.NewMemStore(), zap.NewNop())
	return NewCoordinator(repo, zap.NewNop()), repo
}

func seedLeads(t *testing.T, repo *repository.Repository, n int, status model.LeadStatus) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := repo.Leads("tenant-a").Insert(context.Background(), model.Lead{
			ID:     fmt.Sprintf("lead-%02d", i),
			Name:   "Lead",
			Status: status,
		})
		require.NoError(t, err)
	}
}

func docStatus(doc store.Document) string {
	var fields map[string]any
	if err := json.Unmarshal(doc.Data, &fields); err != nil {
		return ""
	}
	s, _ := fields["status"].(string)
	return s
}

func TestPagedView(t *testing.T) {
	c, repo := newFixture(t)
	ctx := context.Background()
	seedLeads(t, repo, 5, model.LeadNew)

	v, err := c.OpenLeads(ctx, manager, Query{PageSize: 2}, ModePaged)
	require.NoError(t, err)
	defer v.Close()

	var total int
	pages := 0
	for v.HasMore() {
		page, err := v.NextPage(ctx)
		require.NoError(t, err)
		total += len(page)
		pages++
		require.Less(t, pages, 10, "pagination must terminate")
	}
	assert.Equal(t, 5, total)
	assert.Equal(t, 3, pages)

	// An exhausted view yields empty pages, not errors
	page, err := v.NextPage(ctx)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestPagedView_ResidualFilter(t *testing.T) {
	c, repo := newFixture(t)
	ctx := context.Background()
	seedLeads(t, repo, 4, model.LeadNew)

	_, err := repo.Leads("tenant-a").Insert(ctx, model.Lead{ID: "lead-99", Name: "Lead", Status: model.LeadContacted})
	require.NoError(t, err)

	v, err := c.OpenLeads(ctx, manager, Query{
		PageSize: 10,
		Match:    func(doc store.Document) bool { return docStatus(doc) == "contacted" },
	}, ModePaged)
	require.NoError(t, err)
	defer v.Close()

	page, err := v.NextPage(ctx)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "lead-99", page[0].ID)
}

func TestLiveView(t *testing.T) {
	c, repo := newFixture(t)
	ctx := context.Background()
	seedLeads(t, repo, 2, model.LeadContacted)

	v, err := c.OpenLeads(ctx, manager, Query{
		PageSize: 10,
		Match:    func(doc store.Document) bool { return docStatus(doc) == "contacted" },
	}, ModeLive)
	require.NoError(t, err)
	defer v.Close()

	initial, err := v.InitialPage(ctx)
	require.NoError(t, err)
	assert.Len(t, initial, 2)

	// Paging a live view is refused, not silently merged
	_, err = v.NextPage(ctx)
	assert.ErrorIs(t, err, model.ErrUnsupportedQuery)

	// A matching insert arrives as a delta; a non-matching one is filtered out
	_, err = repo.Leads("tenant-a").Insert(ctx, model.Lead{ID: "lead-50", Name: "Lead", Status: model.LeadNew})
	require.NoError(t, err)
	_, err = repo.Leads("tenant-a").Insert(ctx, model.Lead{ID: "lead-51", Name: "Lead", Status: model.LeadContacted})
	require.NoError(t, err)

	select {
	case delta := <-v.Deltas():
		assert.Equal(t, store.OpInsert, delta.Op)
		assert.Equal(t, "lead-51", delta.Doc.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delta")
	}

	// Deletions always pass the filter so subscribers can evict
	require.NoError(t, repo.Leads("tenant-a").Delete(ctx, "lead-50"))
	select {
	case delta := <-v.Deltas():
		assert.Equal(t, store.OpDelete, delta.Op)
		assert.Equal(t, "lead-50", delta.Doc.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delete delta")
	}
}

func TestLiveView_CloseStopsStream(t *testing.T) {
	c, _ := newFixture(t)
	ctx := context.Background()

	v, err := c.OpenLeads(ctx, manager, Query{PageSize: 10}, ModeLive)
	require.NoError(t, err)

	v.Close()
	v.Close() // idempotent

	// After close the delta channel drains and closes
	deadline := time.After(time.Second)
	for {
		select {
		case _, more := <-v.Deltas():
			if !more {
				return
			}
		case <-deadline:
			t.Fatal("delta channel never closed")
		}
	}
}

func TestView_Authorization(t *testing.T) {
	c, _ := newFixture(t)
	ctx := context.Background()

	volunteer := model.Principal{ID: "user-v", TenantID: "tenant-a", Role: model.RoleVolunteer}

	// Volunteers may watch events but not leads
	_, err := c.OpenLeads(ctx, volunteer, Query{}, ModePaged)
	assert.ErrorIs(t, err, model.ErrForbidden)

	v, err := c.OpenEvents(ctx, volunteer, Query{}, ModePaged)
	require.NoError(t, err)
	v.Close()
}

func TestPagedView_PushdownLimit(t *testing.T) {
	c, _ := newFixture(t)
	ctx := context.Background()

	v, err := c.OpenLeads(ctx, manager, Query{
		Pushdown: store.Filter{Equals: map[string]string{"status": "new", "assigned_to": "user-1"}},
		PageSize: 10,
	}, ModePaged)
	require.NoError(t, err)
	defer v.Close()

	_, err = v.NextPage(ctx)
	assert.ErrorIs(t, err, model.ErrUnsupportedQuery)
}
