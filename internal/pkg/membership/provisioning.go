package membership

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/lacrosselab/laxhook/app/models"
)

// Sub-teams provisioned under a freshly created club.
var clubTeamNames = []string{"Team A", "Team B", "Team C"}

// CreateTeamWithLinks creates one team plus its two registration links, a
// player link and a parent link, each with its own random token. Callers
// guard against duplicate provisioning via the entitlement dedup check, so
// this function itself always creates.
func (s *Service) CreateTeamWithLinks(ctx context.Context, clubID *uint, name string, buyerUserID uint) (*models.Team, error) {
	team := &models.Team{
		ClubID:    clubID,
		Name:      name,
		CreatedBy: &buyerUserID,
	}
	if err := s.repo.CreateTeam(ctx, team); err != nil {
		return nil, err
	}

	links := []struct {
		role    string
		maxUses int
	}{
		{models.TeamRolePlayer, models.PlayerLinkMaxUses},
		{models.TeamRoleParent, models.ParentLinkMaxUses},
	}
	for _, l := range links {
		token, err := models.GenerateRegistrationToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate registration token: %w", err)
		}
		link := &models.RegistrationLink{
			Token:       token,
			TargetType:  models.RegistrationTargetTeam,
			TargetID:    team.ID,
			DefaultRole: l.role,
			MaxUses:     l.maxUses,
			CreatedBy:   &buyerUserID,
		}
		if err := s.repo.CreateRegistrationLink(ctx, link); err != nil {
			return nil, err
		}
	}

	log.Infof("[Membership] Provisioned team %d %q with registration links", team.ID, team.Name)

	return team, nil
}

// CreateClubWithTeamsAndLinks creates one club and a fixed roster of
// sub-teams under it, each with its own registration links.
func (s *Service) CreateClubWithTeamsAndLinks(ctx context.Context, product *models.MembershipProduct, buyerUserID uint, email string) (*models.Club, error) {
	club := &models.Club{
		Name:      teamName(product.EntitlementKey, email),
		CreatedBy: &buyerUserID,
	}
	if err := s.repo.CreateClub(ctx, club); err != nil {
		return nil, err
	}

	for _, name := range clubTeamNames {
		if _, err := s.CreateTeamWithLinks(ctx, &club.ID, name, buyerUserID); err != nil {
			return nil, fmt.Errorf("failed to provision sub-team %q for club %d: %w", name, club.ID, err)
		}
	}

	log.Infof("[Membership] Provisioned club %d %q with %d sub-teams", club.ID, club.Name, len(clubTeamNames))

	return club, nil
}
