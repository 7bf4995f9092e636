package repository

import (
	"context"
	"encoding/json"

	"crm-service/internal/model"
	"crm-service/internal/store"
)

// Users is the tenant-scoped accessor for user documents
type Users struct {
	scope Scope
}

func (u Users) decode(doc store.Document) (model.User, error) {
	var user model.User
	if err := json.Unmarshal(doc.Data, &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// Get returns the user and its current revision
func (u Users) Get(ctx context.Context, id string) (model.User, int64, error) {
	var doc store.Document
	err := u.scope.r.withRetry(ctx, "get user", func() error {
		var inner error
		doc, inner = u.scope.r.store.Get(ctx, u.scope.tenantID, store.KindUsers, id)
		return inner
	})
	if err != nil {
		return model.User{}, 0, err
	}
	user, err := u.decode(doc)
	return user, doc.Revision, err
}

// Insert creates a new user document
func (u Users) Insert(ctx context.Context, user model.User) (model.User, error) {
	user.TenantID = u.scope.tenantID
	data, err := json.Marshal(user)
	if err != nil {
		return model.User{}, err
	}
	doc := store.Document{TenantID: u.scope.tenantID, Kind: store.KindUsers, ID: user.ID, Data: data}
	return user, u.scope.r.withRetry(ctx, "insert user", func() error {
		_, inner := u.scope.r.store.Put(ctx, doc, 0)
		return inner
	})
}

// Update conditionally replaces the user at expectedRevision
func (u Users) Update(ctx context.Context, user model.User, expectedRevision int64) (model.User, int64, error) {
	user.TenantID = u.scope.tenantID
	data, err := json.Marshal(user)
	if err != nil {
		return model.User{}, 0, err
	}
	doc := store.Document{TenantID: u.scope.tenantID, Kind: store.KindUsers, ID: user.ID, Data: data}
	var updated store.Document
	err = u.scope.r.withRetry(ctx, "update user", func() error {
		var inner error
		updated, inner = u.scope.r.store.Put(ctx, doc, expectedRevision)
		return inner
	})
	if err != nil {
		return model.User{}, 0, err
	}
	return user, updated.Revision, nil
}

// FindByEmail looks a user up by the indexed email field
func (u Users) FindByEmail(ctx context.Context, email string) (model.User, error) {
	page, err := u.scope.Query(ctx, store.Query{
		Filter: store.Filter{Equals: map[string]string{"email": email}},
		Limit:  1,
	})
	if err != nil {
		return model.User{}, err
	}
	if len(page.Items) == 0 {
		return model.User{}, model.ErrNotFound
	}
	return u.decode(page.Items[0])
}

// Page runs a cursor-paginated query and decodes the page
func (u Users) Page(ctx context.Context, q store.Query) ([]model.User, string, error) {
	page, err := u.scope.Query(ctx, q)
	if err != nil {
		return nil, "", err
	}
	users := make([]model.User, 0, len(page.Items))
	for _, doc := range page.Items {
		user, err := u.decode(doc)
		if err != nil {
			return nil, "", err
		}
		users = append(users, user)
	}
	return users, page.NextCursor, nil
}
