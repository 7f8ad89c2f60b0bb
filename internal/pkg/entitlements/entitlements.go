// Package entitlements is the read side of membership grants: the rest of
// the platform (login checks, feature gates, registration-link redemption)
// asks here instead of querying the tables directly.
package entitlements

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/lacrosselab/laxhook/app/models"
)

// HasActive reports whether the user holds an active entitlement for the key.
func HasActive(ctx context.Context, db *gorm.DB, userID uint, entitlementKey string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&models.MembershipEntitlement{}).
		Where("user_id = ? AND entitlement_key = ? AND status = ?",
			userID, entitlementKey, models.EntitlementStatusActive).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check entitlement %q for user %d: %w", entitlementKey, userID, err)
	}
	return count > 0, nil
}

// ActiveKeys returns all entitlement keys currently active for the user.
func ActiveKeys(ctx context.Context, db *gorm.DB, userID uint) ([]string, error) {
	var keys []string
	err := db.WithContext(ctx).
		Model(&models.MembershipEntitlement{}).
		Where("user_id = ? AND status = ?", userID, models.EntitlementStatusActive).
		Order("entitlement_key ASC").
		Pluck("entitlement_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list entitlements for user %d: %w", userID, err)
	}
	return keys, nil
}
