package event

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

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

var (
	admin     = model.Principal{ID: "user-admin", TenantID: "tenant-a", Role: model.RoleAdmin}
	volunteer = model.Principal{ID: "user-vol-0", TenantID: "tenant-a", Role: model.RoleVolunteer}
)

func newFixture(t *testing.T, users int) (*Manager, *recordingNotifier) {
	t.Helper()
	repo := repository.New(store.NewMemStore(), zap.NewNop())
	notifier := &recordingNotifier{}

	ctx := context.Background()
	for i := 0; i < users; i++ {
		_, err := repo.Users("tenant-a").Insert(ctx, model.User{
			ID:       fmt.Sprintf("user-vol-%d", i),
			TenantID: "tenant-a",
			Email:    fmt.Sprintf("vol%d@acme.test", i),
			Role:     model.RoleVolunteer,
			Status:   model.UserActive,
		})
		require.NoError(t, err)
	}
	return NewManager(repo, notifier, zap.NewNop()), notifier
}

func draft(maxVolunteers int) CreateInput {
	return CreateInput{
		Title:         "Beach Cleanup",
		Date:          time.Now().UTC().Add(48 * time.Hour),
		Location:      "Pier 7",
		EventType:     model.EventInPerson,
		MaxVolunteers: maxVolunteers,
	}
}

func TestCreate(t *testing.T) {
	m, _ := newFixture(t, 0)
	ctx := context.Background()

	event, err := m.Create(ctx, admin, draft(5))
	require.NoError(t, err)
	assert.Equal(t, model.EventScheduled, event.Status)
	assert.NotNil(t, event.AssignedVolunteers)
	assert.Empty(t, event.AssignedVolunteers)

	var validation *model.ValidationError

	in := draft(5)
	in.Title = "  "
	_, err = m.Create(ctx, admin, in)
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "title", validation.Field)

	in = draft(5)
	in.Date = time.Now().UTC().Add(-48 * time.Hour)
	_, err = m.Create(ctx, admin, in)
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "date", validation.Field)

	in = draft(-1)
	_, err = m.Create(ctx, admin, in)
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "max_volunteers", validation.Field)

	// In-person events need a location, remote ones do not
	in = draft(5)
	in.Location = ""
	_, err = m.Create(ctx, admin, in)
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "location", validation.Field)

	in = draft(5)
	in.Location = ""
	in.EventType = model.EventRemote
	_, err = m.Create(ctx, admin, in)
	require.NoError(t, err)

	_, err = m.Create(ctx, volunteer, draft(5))
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestAssignVolunteer(t *testing.T) {
	m, notifier := newFixture(t, 3)
	ctx := context.Background()

	event, err := m.Create(ctx, admin, draft(2))
	require.NoError(t, err)

	updated, err := m.AssignVolunteer(ctx, admin, event.ID, "user-vol-0")
	require.NoError(t, err)
	assert.Equal(t, []string{"user-vol-0"}, updated.AssignedVolunteers)
	assert.Equal(t, []string{"volunteersAdded"}, notifier.Events())

	// Assigning an already assigned volunteer is a no-op, not an error
	updated, err = m.AssignVolunteer(ctx, admin, event.ID, "user-vol-0")
	require.NoError(t, err)
	assert.Len(t, updated.AssignedVolunteers, 1)
	assert.Len(t, notifier.Events(), 1)

	// Unknown and foreign ids are rejected alike
	_, err = m.AssignVolunteer(ctx, admin, event.ID, "user-nobody")
	assert.ErrorIs(t, err, model.ErrCrossTenantUser)

	_, err = m.AssignVolunteer(ctx, admin, event.ID, "user-vol-1")
	require.NoError(t, err)
	_, err = m.AssignVolunteer(ctx, admin, event.ID, "user-vol-2")
	assert.ErrorIs(t, err, model.ErrCapacityExceeded)

	_, err = m.AssignVolunteer(ctx, volunteer, event.ID, "user-vol-2")
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestAssignVolunteer_CapacityUnderConcurrency(t *testing.T) {
	m, _ := newFixture(t, 8)
	ctx := context.Background()

	event, err := m.Create(ctx, admin, draft(1))
	require.NoError(t, err)

	// Eight writers race for one slot; the conditional write admits exactly one
	results := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.AssignVolunteer(ctx, admin, event.ID, fmt.Sprintf("user-vol-%d", i))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var ok, full int
	for err := range results {
		switch {
		case err == nil:
			ok++
		default:
			require.ErrorIs(t, err, model.ErrCapacityExceeded)
			full++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, full)

	final, _, err := m.List(ctx, admin, store.Query{})
	require.NoError(t, err)
	require.Len(t, final, 1)
	assert.Len(t, final[0].AssignedVolunteers, 1)
}

func TestUnassignVolunteer(t *testing.T) {
	m, notifier := newFixture(t, 2)
	ctx := context.Background()

	event, err := m.Create(ctx, admin, draft(2))
	require.NoError(t, err)
	_, err = m.AssignVolunteer(ctx, admin, event.ID, "user-vol-0")
	require.NoError(t, err)

	updated, err := m.UnassignVolunteer(ctx, admin, event.ID, "user-vol-0")
	require.NoError(t, err)
	assert.Empty(t, updated.AssignedVolunteers)
	assert.Equal(t, []string{"volunteersAdded", "volunteersRemoved"}, notifier.Events())

	// Removing an absent volunteer is a no-op
	_, err = m.UnassignVolunteer(ctx, admin, event.ID, "user-vol-1")
	require.NoError(t, err)
	assert.Len(t, notifier.Events(), 2)
}

func TestTerminalStates(t *testing.T) {
	m, notifier := newFixture(t, 1)
	ctx := context.Background()

	event, err := m.Create(ctx, admin, draft(2))
	require.NoError(t, err)

	completed, err := m.MarkCompleted(ctx, admin, event.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventCompleted, completed.Status)
	assert.Equal(t, []string{"eventStatusUpdate"}, notifier.Events())

	// Terminal is final: no cancel, no re-complete, no mutation of any kind
	_, err = m.Cancel(ctx, admin, event.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyTerminal)
	_, err = m.MarkCompleted(ctx, admin, event.ID)
	assert.ErrorIs(t, err, model.ErrAlreadyTerminal)
	_, err = m.AssignVolunteer(ctx, admin, event.ID, "user-vol-0")
	assert.ErrorIs(t, err, model.ErrAlreadyTerminal)
	_, err = m.AssignOfficer(ctx, admin, event.ID, "user-vol-0")
	assert.ErrorIs(t, err, model.ErrAlreadyTerminal)

	// And the record is unchanged by the rejected attempts
	events, _, err := m.List(ctx, admin, store.Query{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventCompleted, events[0].Status)
	assert.Empty(t, events[0].AssignedVolunteers)
	assert.Len(t, notifier.Events(), 1)
}

func TestAssignOfficer(t *testing.T) {
	m, _ := newFixture(t, 1)
	ctx := context.Background()

	event, err := m.Create(ctx, admin, draft(2))
	require.NoError(t, err)

	updated, err := m.AssignOfficer(ctx, admin, event.ID, "user-vol-0")
	require.NoError(t, err)
	assert.Equal(t, "user-vol-0", updated.AssignedOfficer)

	_, err = m.AssignOfficer(ctx, admin, event.ID, "user-nobody")
	assert.ErrorIs(t, err, model.ErrCrossTenantUser)
}
