package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lacrosselab/laxhook/app/models"
)

// Service applies the business side effects of billing provider events:
// user resolution, entitlement grants and revocations, and team/club
// provisioning. Every handler is idempotent so replayed deliveries are safe.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB is a convenience constructor for wiring in main.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// HandleSubscriptionActivation processes subscription.created, .activated and
// .upgraded. An unmapped membership id is a successful no-op: unmapped plans
// are expected, not an error condition.
func (s *Service) HandleSubscriptionActivation(ctx context.Context, evt *SubscriptionEvent) error {
	if evt.MembershipID == 0 {
		return fmt.Errorf("%s event without membership_id", evt.Type)
	}

	product, err := s.repo.FindActiveProductByWPMembershipID(ctx, evt.MembershipID)
	if err != nil {
		return err
	}
	if product == nil {
		log.Infof("[Membership] No product mapping for membership %d, skipping %s", evt.MembershipID, evt.Type)
		return nil
	}

	user, err := s.EnsureUser(ctx, evt.Email, evt.WordpressUserID, evt.FullName)
	if err != nil {
		return fmt.Errorf("failed to resolve user for membership %d: %w", evt.MembershipID, err)
	}

	metadata, _ := json.Marshal(map[string]interface{}{
		"wp_membership_id": evt.MembershipID,
		"event_type":       evt.Type,
	})
	ent, created, err := s.repo.CreateEntitlementIfNotExists(ctx, &models.MembershipEntitlement{
		UserID:         user.ID,
		EntitlementKey: product.EntitlementKey,
		Status:         models.EntitlementStatusActive,
		Source:         models.WebhookSourceMemberpress,
		Metadata:       datatypes.JSON(metadata),
	})
	if err != nil {
		return err
	}

	if !created {
		// Replay or re-subscription. Reactivate if needed but never
		// provision a second team/club for the same entitlement.
		if !ent.IsActive() {
			if err := s.repo.UpdateEntitlementStatus(ctx, ent.ID, models.EntitlementStatusActive); err != nil {
				return err
			}
			log.Infof("[Membership] Reactivated entitlement %q for user %d", product.EntitlementKey, user.ID)
		}
		return nil
	}

	log.Infof("[Membership] Granted entitlement %q to user %d", product.EntitlementKey, user.ID)

	switch product.CreateBehavior {
	case models.CreateBehaviorTeam:
		_, err = s.CreateTeamWithLinks(ctx, nil, teamName(product.EntitlementKey, evt.Email), user.ID)
		return err
	case models.CreateBehaviorClub:
		_, err = s.CreateClubWithTeamsAndLinks(ctx, product, user.ID, evt.Email)
		return err
	default:
		return nil
	}
}

// HandleSubscriptionTermination processes subscription.canceled and .expired.
// The user must already exist; an unknown user or unmapped product is a
// successful no-op so stale cancellations never poison the queue.
func (s *Service) HandleSubscriptionTermination(ctx context.Context, evt *SubscriptionEvent) error {
	user, err := s.findExistingUser(ctx, evt)
	if err != nil {
		return err
	}
	if user == nil {
		log.Infof("[Membership] No user for %s (wp id %d, email %q), skipping", evt.Type, evt.WordpressUserID, evt.Email)
		return nil
	}

	product, err := s.repo.FindActiveProductByWPMembershipID(ctx, evt.MembershipID)
	if err != nil {
		return err
	}
	if product == nil {
		log.Infof("[Membership] No product mapping for membership %d, skipping %s", evt.MembershipID, evt.Type)
		return nil
	}

	ent, err := s.repo.FindEntitlement(ctx, user.ID, product.EntitlementKey)
	if err != nil {
		return err
	}
	if ent == nil {
		log.Infof("[Membership] No entitlement %q for user %d, skipping %s", product.EntitlementKey, user.ID, evt.Type)
		return nil
	}

	status := terminationStatus(evt.Type)
	if err := s.repo.UpdateEntitlementStatus(ctx, ent.ID, status); err != nil {
		return err
	}
	log.Infof("[Membership] Entitlement %q for user %d set to %s", product.EntitlementKey, user.ID, status)

	if product.Scope == models.ProductScopeTeam {
		unlinked, err := s.repo.DeactivateTeamMemberships(ctx, user.ID)
		if err != nil {
			return err
		}
		if unlinked > 0 {
			log.Infof("[Membership] Soft-unlinked %d team membership(s) for user %d", unlinked, user.ID)
		}
	}

	return nil
}

// HandleTransaction processes transaction.completed and .refunded. These are
// audit hooks with no side effects yet.
func (s *Service) HandleTransaction(ctx context.Context, evt *TransactionEvent) error {
	log.Infof("[Membership] Transaction %s: id=%s membership=%d amount=%s", evt.Type, evt.TransactionID, evt.MembershipID, evt.Amount)
	return nil
}

// EnsureUser resolves a user by wordpress id first, then by email, and
// creates one when neither matches. Missing identifiers are backfilled on the
// way. Calling it twice with the same inputs never creates two users.
func (s *Service) EnsureUser(ctx context.Context, email string, wordpressID int64, fullName string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if wordpressID != 0 {
		user, err := s.repo.FindUserByWordpressID(ctx, wordpressID)
		if err != nil {
			return nil, err
		}
		if user != nil {
			if user.Email == "" && email != "" {
				user.Email = email
				if err := s.repo.SaveUser(ctx, user); err != nil {
					return nil, err
				}
			}
			return user, nil
		}
	}

	if email != "" {
		user, err := s.repo.FindUserByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if user != nil {
			if user.WordpressID == nil && wordpressID != 0 {
				wpID := wordpressID
				user.WordpressID = &wpID
				if err := s.repo.SaveUser(ctx, user); err != nil {
					return nil, err
				}
			}
			return user, nil
		}
	}

	if email == "" && wordpressID == 0 {
		return nil, fmt.Errorf("cannot resolve user without email or wordpress id")
	}

	user := &models.User{
		Name:   fullName,
		Email:  email,
		Role:   models.ROLE_USER,
		Status: models.STATUS_ACTIVE,
	}
	if wordpressID != 0 {
		wpID := wordpressID
		user.WordpressID = &wpID
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("invalid user data: %w", err)
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	log.Infof("[Membership] Created user %d for %q (wp id %d)", user.ID, email, wordpressID)

	return user, nil
}

func (s *Service) findExistingUser(ctx context.Context, evt *SubscriptionEvent) (*models.User, error) {
	if evt.WordpressUserID != 0 {
		user, err := s.repo.FindUserByWordpressID(ctx, evt.WordpressUserID)
		if err != nil || user != nil {
			return user, err
		}
	}
	if evt.Email != "" {
		return s.repo.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(evt.Email)))
	}
	return nil, nil
}

// terminationStatus maps the event name to the stored entitlement status:
// anything carrying "canceled" is a cancellation, the rest counts as expiry.
func terminationStatus(eventType string) string {
	if strings.Contains(eventType, "canceled") {
		return models.EntitlementStatusCanceled
	}
	return models.EntitlementStatusExpired
}

func teamName(entitlementKey, email string) string {
	owner := "team"
	if email != "" {
		owner = email
	}
	return entitlementKey + " – " + owner
}
