// Package directory looks up user profiles.
package directory

import (
	"context"
	"strings"

	"nexochat/backend/internal/apperror"
	"nexochat/backend/internal/config"
	"nexochat/backend/internal/models"

	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// WithTx returns a Service bound to tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search returns up to SearchResultLimit profiles whose email contains query,
// ignoring case, never including excludeID. A blank query matches nothing.
func (s *Service) Search(ctx context.Context, query, excludeID string) ([]models.Profile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.Profile{}, nil
	}

	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	var profiles []models.Profile
	err := s.db.WithContext(ctx).
		Where(`LOWER(email) LIKE ? ESCAPE '\'`, pattern).
		Where("id <> ?", excludeID).
		Order("email").
		Limit(config.SearchResultLimit).
		Find(&profiles).Error
	if err != nil {
		return nil, apperror.FromDB(err, "profile")
	}
	return profiles, nil
}

func (s *Service) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, apperror.FromDB(err, "profile")
	}
	return &p, nil
}

// Exists reports whether a profile with id exists.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, apperror.FromDB(err, "profile")
	}
	return n > 0, nil
}

// Compact loads the compact form of every listed profile in one query.
// Unknown IDs are absent from the result.
func (s *Service) Compact(ctx context.Context, ids ...string) (map[string]models.ProfileCompact, error) {
	out := make(map[string]models.ProfileCompact, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var profiles []models.Profile
	if err := s.db.WithContext(ctx).Where("id IN ?", unique(ids)).Find(&profiles).Error; err != nil {
		return nil, apperror.FromDB(err, "profile")
	}
	for i := range profiles {
		out[profiles[i].ID] = profiles[i].Compact()
	}
	return out, nil
}

// Save creates or updates a profile. Used for provisioning only.
func (s *Service) Save(ctx context.Context, p *models.Profile) error {
	p.Email = strings.TrimSpace(p.Email)
	if p.Email == "" {
		return apperror.InvalidArg("email is required")
	}
	if p.Status != "" && !p.Status.Valid() {
		return apperror.Newf(apperror.CodeInvalidArgument, "unknown status %q", p.Status)
	}

	db := s.db.WithContext(ctx)
	var err error
	if p.ID == "" {
		err = db.Create(p).Error
	} else {
		err = db.Save(p).Error
	}
	return apperror.FromDB(err, "profile")
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
