package crud

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_ListPagesSearchesAndOrders(t *testing.T) {
	c := testDB(t)
	seed(t, c, "Go generics", "Fiber routing", "GORM schemas", "go modules")
	repo := NewRepository[article](c, nil)
	ctx := context.Background()

	page, err := repo.List(ctx, Query{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "Go generics", page.Entries[0].Title)
	assert.Equal(t, 1, page.From())
	assert.Equal(t, 2, page.To())

	page, err = repo.List(ctx, Query{Page: 2, PerPage: 3})
	require.NoError(t, err)
	assert.Len(t, page.Entries, 1)
	assert.Equal(t, 4, page.From())
	assert.Equal(t, 4, page.To())

	page, err = repo.List(ctx, Query{Search: "GO", SearchColumns: []string{"title"}, Order: "title", Desc: true, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total, "matches Go, GORM and go")
	assert.Equal(t, "go modules", page.Entries[0].Title)

	page, err = repo.List(ctx, Query{Search: "go", SearchColumns: []string{"views", "nope"}})
	require.NoError(t, err)
	assert.Zero(t, page.Total, "non-text and unknown columns are not searched")
	assert.Zero(t, page.From())

	page, err = repo.List(ctx, Query{Order: "title; DROP TABLE articles", PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total, "unknown order columns fall back to the primary key")
}

func TestRepository_CRUD(t *testing.T) {
	c := testDB(t)
	repo := NewRepository[article](c, nil)
	ctx := context.Background()

	entry := &article{}
	require.NoError(t, repo.SetAttributes(ctx, entry, map[string]string{
		"title":     "Hello",
		"published": "on",
		"views":     "7",
		"id":        "99",
		"unknown":   "x",
	}))
	require.NoError(t, repo.Create(ctx, entry))
	assert.NotEqual(t, uint(99), entry.ID, "the primary key is never assigned from input")
	assert.True(t, entry.Published)
	assert.Equal(t, 7, entry.Views)

	found, err := repo.Find(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", found.Title)

	found.Title = "Hello again"
	require.NoError(t, repo.Save(ctx, found))

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, repo.Delete(ctx, "1"))
	_, err = repo.Find(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "1"), ErrNotFound)
	_, err = repo.Find(ctx, "not-a-number")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_Attributes(t *testing.T) {
	repo := NewRepository[article](testDB(t), nil)
	attrs, err := repo.Attributes(context.Background(), &article{ID: 3, Title: "T", Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, uint(3), attrs["id"])
	assert.Equal(t, "T", attrs["title"])
	assert.NotContains(t, attrs, "password")
	assert.Contains(t, attrs, "created_at")
}

func TestRepository_SetAttributesRejectsBadNumbers(t *testing.T) {
	repo := NewRepository[article](testDB(t), nil)
	err := repo.SetAttributes(context.Background(), &article{}, map[string]string{"views": "many"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "views")
}

func TestRepository_Migrate(t *testing.T) {
	c := testDB(t)
	require.NoError(t, c.db.Migrator().DropTable(&article{}))
	repo := NewRepository[article](c, nil)
	require.NoError(t, repo.Migrate(context.Background()))
	assert.True(t, c.db.Migrator().HasTable(&article{}))
}
