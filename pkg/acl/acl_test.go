package acl

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "acl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db, "sqlite")
	require.NoError(t, err)
	return store
}

func readGrant(gid string) Grant {
	return Grant{GroupID: gid, Read: true}
}

func TestReplaceGrants(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.ReplaceGrants(ctx, 1, []Grant{
		{GroupID: "GRP000002", Read: true, Write: true},
		{GroupID: "GRP000003", Read: true},
	}))

	grants, err := store.Grants(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []Grant{
		{GroupID: "GRP000002", Read: true, Write: true},
		{GroupID: "GRP000003", Read: true},
	}, grants)

	// Replacement is total: the old set is gone.
	require.NoError(t, store.ReplaceGrants(ctx, 1, []Grant{readGrant("GRP000004")}))
	grants, err = store.Grants(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []Grant{readGrant("GRP000004")}, grants)

	// Empty set revokes everything.
	require.NoError(t, store.ReplaceGrants(ctx, 1, nil))
	grants, err = store.Grants(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestReplaceGrantsDeduplicates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.ReplaceGrants(ctx, 5, []Grant{
		readGrant("GRP000002"), readGrant("GRP000002"), readGrant(""),
	}))

	grants, err := store.Grants(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []Grant{readGrant("GRP000002")}, grants)
}

func TestGroupPermsORsAcrossGroups(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.ReplaceGrants(ctx, 1, []Grant{
		{GroupID: "GRP000002", Read: true},
		{GroupID: "GRP000003", Write: true},
	}))
	require.NoError(t, store.ReplaceGrants(ctx, 2, []Grant{
		{GroupID: "GRP000003", Read: true, Delete: true},
	}))

	perms, err := store.GroupPerms(ctx, []string{"GRP000002", "GRP000003"})
	require.NoError(t, err)
	assert.Equal(t, Perms{Read: true, Write: true}, perms[1])
	assert.Equal(t, Perms{Read: true, Delete: true}, perms[2])

	perms, err = store.GroupPerms(ctx, []string{"GRP000002"})
	require.NoError(t, err)
	assert.Equal(t, Perms{Read: true}, perms[1])
	assert.False(t, perms[2].Any())

	perms, err = store.GroupPerms(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestRemoveCollectionAndGroup(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.ReplaceGrants(ctx, 1, []Grant{
		readGrant("GRP000002"), readGrant("GRP000003"),
	}))
	require.NoError(t, store.ReplaceGrants(ctx, 2, []Grant{readGrant("GRP000002")}))

	require.NoError(t, store.RemoveCollection(ctx, 1))
	grants, err := store.Grants(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, grants)

	require.NoError(t, store.RemoveGroup(ctx, "GRP000002"))
	grants, err = store.Grants(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestEffective(t *testing.T) {
	groupPerms := map[int]Perms{2: {Read: true, Write: false}}

	assert.Equal(t, AllPerms, Effective(Decision{CollectionID: 1, CreatorID: 9}, 0, true, nil), "admin holds all")
	assert.Equal(t, AllPerms, Effective(Decision{CollectionID: 1, CreatorID: 7}, 7, false, nil), "creator holds all")

	granted := Effective(Decision{CollectionID: 2, CreatorID: 9}, 7, false, groupPerms)
	assert.True(t, granted.Read)
	assert.False(t, granted.Write, "read grant does not imply write")

	assert.False(t, Effective(Decision{CollectionID: 3, CreatorID: 9}, 7, false, groupPerms).Any())
}
