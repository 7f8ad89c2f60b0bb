package membership

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lacrosselab/laxhook/app/models"
)

// Repository is the persistence surface of the membership service. A thin
// interface keeps the service testable against an in-memory database.
type Repository interface {
	FindActiveProductByWPMembershipID(ctx context.Context, wpMembershipID int64) (*models.MembershipProduct, error)
	FindUserByWordpressID(ctx context.Context, wordpressID int64) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	SaveUser(ctx context.Context, user *models.User) error

	// CreateEntitlementIfNotExists inserts the entitlement unless one with the
	// same (user, key) already exists. Returns the stored row and whether this
	// call created it.
	CreateEntitlementIfNotExists(ctx context.Context, ent *models.MembershipEntitlement) (*models.MembershipEntitlement, bool, error)
	FindEntitlement(ctx context.Context, userID uint, entitlementKey string) (*models.MembershipEntitlement, error)
	UpdateEntitlementStatus(ctx context.Context, entitlementID uint, status string) error

	CreateTeam(ctx context.Context, team *models.Team) error
	CreateClub(ctx context.Context, club *models.Club) error
	CreateRegistrationLink(ctx context.Context, link *models.RegistrationLink) error
	// DeactivateTeamMemberships soft-unlinks a user from all teams and
	// returns how many memberships were flipped to inactive.
	DeactivateTeamMemberships(ctx context.Context, userID uint) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository wraps a gorm handle in the Repository interface.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindActiveProductByWPMembershipID(ctx context.Context, wpMembershipID int64) (*models.MembershipProduct, error) {
	var product models.MembershipProduct
	err := r.db.WithContext(ctx).
		Where("wp_membership_id = ? AND is_active = ?", wpMembershipID, true).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find product for membership %d: %w", wpMembershipID, err)
	}
	return &product, nil
}

func (r *gormRepository) FindUserByWordpressID(ctx context.Context, wordpressID int64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("wordpress_id = ?", wordpressID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by wordpress id %d: %w", wordpressID, err)
	}
	return &user, nil
}

func (r *gormRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return &user, nil
}

func (r *gormRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *gormRepository) SaveUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (r *gormRepository) CreateEntitlementIfNotExists(ctx context.Context, ent *models.MembershipEntitlement) (*models.MembershipEntitlement, bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "entitlement_key"}},
		DoNothing: true,
	}).Create(ent)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create entitlement: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return ent, true, nil
	}

	existing, err := r.FindEntitlement(ctx, ent.UserID, ent.EntitlementKey)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("entitlement for user %d key %q vanished after conflict", ent.UserID, ent.EntitlementKey)
	}
	return existing, false, nil
}

func (r *gormRepository) FindEntitlement(ctx context.Context, userID uint, entitlementKey string) (*models.MembershipEntitlement, error) {
	var ent models.MembershipEntitlement
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND entitlement_key = ?", userID, entitlementKey).
		First(&ent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find entitlement: %w", err)
	}
	return &ent, nil
}

func (r *gormRepository) UpdateEntitlementStatus(ctx context.Context, entitlementID uint, status string) error {
	err := r.db.WithContext(ctx).Model(&models.MembershipEntitlement{}).
		Where("id = ?", entitlementID).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update entitlement %d status: %w", entitlementID, err)
	}
	return nil
}

func (r *gormRepository) CreateTeam(ctx context.Context, team *models.Team) error {
	if err := r.db.WithContext(ctx).Create(team).Error; err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

func (r *gormRepository) CreateClub(ctx context.Context, club *models.Club) error {
	if err := r.db.WithContext(ctx).Create(club).Error; err != nil {
		return fmt.Errorf("failed to create club: %w", err)
	}
	return nil
}

func (r *gormRepository) CreateRegistrationLink(ctx context.Context, link *models.RegistrationLink) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return fmt.Errorf("failed to create registration link: %w", err)
	}
	return nil
}

func (r *gormRepository) DeactivateTeamMemberships(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("user_id = ? AND status = ?", userID, models.TeamMemberStatusActive).
		Update("status", models.TeamMemberStatusInactive)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to deactivate team memberships for user %d: %w", userID, res.Error)
	}
	return res.RowsAffected, nil
}
