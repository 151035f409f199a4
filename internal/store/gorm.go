package store

import (
	"context"
	"errors"
	"time"

	"github.com/campuspool/backend/internal/models"
	"gorm.io/gorm"
)

// Gorm is the database-backed Store. Every conditional put is one UPDATE
// guarded by the revision the caller read, which is as much atomicity as the
// engine is allowed to assume: per row, never across rows.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) GetParty(ctx context.Context, id string) (*models.Party, error) {
	var p models.Party
	if err := g.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (g *Gorm) CreateParty(ctx context.Context, p *models.Party) error {
	err := g.db.WithContext(ctx).Create(p).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

func (g *Gorm) PutParty(ctx context.Context, p *models.Party) error {
	// Only the fields the registry owns are written back; identity and
	// itinerary are immutable after creation.
	res := g.db.WithContext(ctx).Model(&models.Party{}).
		Where("id = ? AND revision = ?", p.ID, p.Revision).
		Updates(map[string]interface{}{
			"members":    p.Members,
			"status":     p.Status,
			"revision":   p.Revision + 1,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return g.partyPutFailure(ctx, p.ID)
	}
	p.Revision++
	return nil
}

// partyPutFailure tells a deleted party apart from a lost race.
func (g *Gorm) partyPutFailure(ctx context.Context, id string) error {
	var count int64
	if err := g.db.WithContext(ctx).Model(&models.Party{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrRevisionConflict
}

func (g *Gorm) DeleteParty(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Delete(&models.Party{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) ListParties(ctx context.Context, statuses ...models.PartyStatus) ([]models.Party, error) {
	q := g.db.WithContext(ctx).Model(&models.Party{})
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var out []models.Party
	if err := q.Order("departure_time ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gorm) PartiesWithMember(ctx context.Context, uid string) ([]models.Party, error) {
	// The member set is a JSON column, so membership is filtered in process.
	// Party counts on a campus are small enough that this stays cheap.
	var candidates []models.Party
	err := g.db.WithContext(ctx).
		Where("status IN ?", []models.PartyStatus{models.PartyOpen, models.PartyClosed}).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}
	var out []models.Party
	for _, p := range candidates {
		if p.HasMember(uid) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (g *Gorm) GetRequest(ctx context.Context, id string) (*models.JoinRequest, error) {
	var r models.JoinRequest
	if err := g.db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (g *Gorm) CreateRequest(ctx context.Context, r *models.JoinRequest) error {
	err := g.db.WithContext(ctx).Create(r).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return err
}

func (g *Gorm) PutRequest(ctx context.Context, r *models.JoinRequest) error {
	res := g.db.WithContext(ctx).Model(&models.JoinRequest{}).
		Where("id = ? AND revision = ?", r.ID, r.Revision).
		Updates(map[string]interface{}{
			"status":      r.Status,
			"resolved_at": r.ResolvedAt,
			"revision":    r.Revision + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := g.db.WithContext(ctx).Model(&models.JoinRequest{}).Where("id = ?", r.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrRevisionConflict
	}
	r.Revision++
	return nil
}

func (g *Gorm) PendingRequestForUser(ctx context.Context, uid string) (*models.JoinRequest, error) {
	var r models.JoinRequest
	err := g.db.WithContext(ctx).
		Where("requester_id = ? AND status = ?", uid, models.RequestPending).
		Order("created_at ASC").
		First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (g *Gorm) PendingRequestsForParty(ctx context.Context, partyID string) ([]models.JoinRequest, error) {
	var out []models.JoinRequest
	err := g.db.WithContext(ctx).
		Where("party_id = ? AND status = ?", partyID, models.RequestPending).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (g *Gorm) RequestsForParty(ctx context.Context, partyID string) ([]models.JoinRequest, error) {
	var out []models.JoinRequest
	err := g.db.WithContext(ctx).
		Where("party_id = ?", partyID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (g *Gorm) PendingRequests(ctx context.Context) ([]models.JoinRequest, error) {
	var out []models.JoinRequest
	err := g.db.WithContext(ctx).
		Where("status = ?", models.RequestPending).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (g *Gorm) TerminalizeRequests(ctx context.Context, ids []string, status models.RequestStatus) (int, error) {
	n := 0
	now := time.Now()
	for _, chunk := range Chunk(ids) {
		res := g.db.WithContext(ctx).Model(&models.JoinRequest{}).
			Where("id IN ? AND status = ?", chunk, models.RequestPending).
			Updates(map[string]interface{}{
				"status":      status,
				"resolved_at": now,
				"revision":    gorm.Expr("revision + 1"),
			})
		if res.Error != nil {
			return n, res.Error
		}
		n += int(res.RowsAffected)
	}
	return n, nil
}
