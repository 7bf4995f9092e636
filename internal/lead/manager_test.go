package lead

import (
	"context"
	"sync"
	"testing"

	"crm-service/internal/model"
	"crm-service/internal/repository"
	"crm-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event string, _ map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type fixture struct {
	manager  *Manager
	repo     *repository.Repository
	notifier *recordingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := repository.New(store.NewMemStore(), zap.NewNop())
	notifier := &recordingNotifier{}
	f := fixture{
		manager:  NewManager(repo, notifier, zap.NewNop()),
		repo:     repo,
		notifier: notifier,
	}
	// Users the tests assign to
	for _, id := range []string{"user-mgr", "user-csr"} {
		_, err := repo.Users("tenant-a").Insert(context.Background(), model.User{
			ID: id, TenantID: "tenant-a", Email: id + "@acme.test",
			Role: model.RoleCSR, Status: model.UserActive,
		})
		require.NoError(t, err)
	}
	return f
}

var (
	manager = model.Principal{ID: "user-mgr", TenantID: "tenant-a", Role: model.RoleManager}
	csr     = model.Principal{ID: "user-csr", TenantID: "tenant-a", Role: model.RoleCSR}
)

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lead, err := f.manager.Create(ctx, manager, CreateInput{Name: " Ada Lovelace ", Contact: "ada@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, "tenant-a", lead.TenantID)
	assert.Equal(t, "Ada Lovelace", lead.Name)
	assert.Equal(t, model.LeadNew, lead.Status)
	assert.Equal(t, "user-mgr", lead.CreatedBy)

	var validation *model.ValidationError
	_, err = f.manager.Create(ctx, manager, CreateInput{Contact: "x@example.com"})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "name", validation.Field)

	_, err = f.manager.Create(ctx, manager, CreateInput{Name: "No Contact"})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "contact", validation.Field)

	volunteer := model.Principal{ID: "user-v", TenantID: "tenant-a", Role: model.RoleVolunteer}
	_, err = f.manager.Create(ctx, volunteer, CreateInput{Name: "X", Contact: "x@example.com"})
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lead, err := f.manager.Create(ctx, manager, CreateInput{Name: "Ada", Contact: "ada@example.com"})
	require.NoError(t, err)

	// new cannot jump straight to qualified
	var invalid *model.InvalidTransitionError
	_, err = f.manager.Transition(ctx, manager, lead.ID, model.LeadQualified)
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "new", invalid.From)

	_, err = f.manager.Transition(ctx, manager, lead.ID, model.LeadContacted)
	require.NoError(t, err)

	// contacted cannot be left while unassigned
	var validation *model.ValidationError
	_, err = f.manager.Transition(ctx, manager, lead.ID, model.LeadQualified)
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "assigned_to", validation.Field)

	_, err = f.manager.Assign(ctx, manager, lead.ID, "user-csr")
	require.NoError(t, err)

	_, err = f.manager.Transition(ctx, manager, lead.ID, model.LeadQualified)
	require.NoError(t, err)

	// Non-terminal transitions do not notify
	assert.Empty(t, f.notifier.Events())

	updated, err := f.manager.Transition(ctx, manager, lead.ID, model.LeadConverted)
	require.NoError(t, err)
	assert.Equal(t, model.LeadConverted, updated.Status)
	assert.Equal(t, []string{"leadStatusUpdate"}, f.notifier.Events())

	// Terminal state rejects further transitions and reassignment
	_, err = f.manager.Transition(ctx, manager, lead.ID, model.LeadLost)
	assert.ErrorAs(t, err, &invalid)
	_, err = f.manager.Assign(ctx, manager, lead.ID, "user-mgr")
	assert.ErrorIs(t, err, model.ErrAlreadyTerminal)

	// Unknown statuses are rejected before touching the store
	_, err = f.manager.Transition(ctx, manager, lead.ID, model.LeadStatus("archived"))
	assert.ErrorAs(t, err, &validation)
}

func TestReopen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lead, err := f.manager.Create(ctx, manager, CreateInput{Name: "Ada", Contact: "ada@example.com"})
	require.NoError(t, err)

	// Reopen only applies to terminal leads
	var invalid *model.InvalidTransitionError
	_, err = f.manager.Reopen(ctx, manager, lead.ID)
	require.ErrorAs(t, err, &invalid)

	_, err = f.manager.Transition(ctx, manager, lead.ID, model.LeadContacted)
	require.NoError(t, err)
	_, err = f.manager.Transition(ctx, manager, lead.ID, model.LeadLost)
	require.NoError(t, err)

	// CSR lacks the reopen capability even on a lead it owns
	_, err = f.manager.Reopen(ctx, csr, lead.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	reopened, err := f.manager.Reopen(ctx, manager, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LeadContacted, reopened.Status)
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lead, err := f.manager.Create(ctx, manager, CreateInput{Name: "Ada", Contact: "ada@example.com"})
	require.NoError(t, err)

	// A user id the tenant's scope cannot see is rejected, whether it belongs
	// to another tenant or to nobody
	_, err = f.repo.Users("tenant-b").Insert(ctx, model.User{
		ID: "user-foreign", TenantID: "tenant-b", Email: "f@other.test",
		Role: model.RoleCSR, Status: model.UserActive,
	})
	require.NoError(t, err)
	_, err = f.manager.Assign(ctx, manager, lead.ID, "user-foreign")
	assert.ErrorIs(t, err, model.ErrCrossTenantUser)
	_, err = f.manager.Assign(ctx, manager, lead.ID, "user-nobody")
	assert.ErrorIs(t, err, model.ErrCrossTenantUser)

	assigned, err := f.manager.Assign(ctx, manager, lead.ID, "user-csr")
	require.NoError(t, err)
	assert.Equal(t, "user-csr", assigned.AssignedTo)

	// Now the CSR owns it and may reassign; before, it could not
	_, err = f.manager.Assign(ctx, csr, lead.ID, "user-mgr")
	require.NoError(t, err)
	_, err = f.manager.Assign(ctx, csr, lead.ID, "user-csr")
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lead, err := f.manager.Create(ctx, manager, CreateInput{Name: "Ada", Contact: "ada@example.com"})
	require.NoError(t, err)

	// CSR lacks the delete capability outright
	err = f.manager.Delete(ctx, csr, lead.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	require.NoError(t, f.manager.Delete(ctx, manager, lead.ID))
	_, err = f.manager.Assign(ctx, manager, lead.ID, "user-csr")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.manager.Create(ctx, manager, CreateInput{Name: "Lead", Contact: "l@example.com"})
		require.NoError(t, err)
	}

	leads, cursor, err := f.manager.List(ctx, manager, store.Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, leads, 2)
	require.NotEmpty(t, cursor)

	leads, cursor, err = f.manager.List(ctx, manager, store.Query{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	assert.Len(t, leads, 1)
	assert.Empty(t, cursor)

	volunteer := model.Principal{ID: "user-v", TenantID: "tenant-a", Role: model.RoleVolunteer}
	_, _, err = f.manager.List(ctx, volunteer, store.Query{})
	assert.ErrorIs(t, err, model.ErrForbidden)
}
