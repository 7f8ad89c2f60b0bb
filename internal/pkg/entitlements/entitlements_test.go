package entitlements

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lacrosselab/laxhook/app/models"
)

var testDBSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:entitlements_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.MembershipEntitlement{}))
	return db
}

func TestHasActive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.MembershipEntitlement{
		UserID: 1, EntitlementKey: "team-pack", Status: models.EntitlementStatusActive,
	}).Error)
	require.NoError(t, db.Create(&models.MembershipEntitlement{
		UserID: 1, EntitlementKey: "film-room", Status: models.EntitlementStatusCanceled,
	}).Error)

	ok, err := HasActive(ctx, db, 1, "team-pack")
	require.NoError(t, err)
	assert.True(t, ok)

	// Canceled grants no longer count.
	ok, err = HasActive(ctx, db, 1, "film-room")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = HasActive(ctx, db, 2, "team-pack")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActiveKeys(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for key, status := range map[string]string{
		"team-pack":  models.EntitlementStatusActive,
		"film-room":  models.EntitlementStatusActive,
		"club-admin": models.EntitlementStatusExpired,
	} {
		require.NoError(t, db.Create(&models.MembershipEntitlement{
			UserID: 1, EntitlementKey: key, Status: status,
		}).Error)
	}

	keys, err := ActiveKeys(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"film-room", "team-pack"}, keys)

	keys, err = ActiveKeys(ctx, db, 2)
	require.NoError(t, err)
	assert.Empty(t, keys)
}
