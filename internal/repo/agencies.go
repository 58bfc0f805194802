package repo

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/datanexus/internal/market"
)

// GetAgency returns the agency profile.
func (p *Postgres) GetAgency(ctx context.Context, id market.AgencyID) (market.Agency, error) {
	const op = "get agency"
	if err := p.ready(op); err != nil {
		return market.Agency{}, err
	}
	row, err := p.queryRow(ctx, p.sb.Select("name", "contact_email", "phone", "updated_at").
		From("agencies").Where(sq.Eq{"id": id.String()}))
	if err != nil {
		return market.Agency{}, market.Persistence(op, err)
	}
	agency := market.Agency{ID: id}
	if err := row.Scan(&agency.Name, &agency.ContactEmail, &agency.Phone, &agency.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return market.Agency{}, market.ErrNotFound
		}
		return market.Agency{}, market.Persistence(op, err)
	}
	return agency, nil
}

// UpsertAgency creates or replaces the agency profile.
func (p *Postgres) UpsertAgency(ctx context.Context, agency market.Agency) (market.Agency, error) {
	const op = "upsert agency"
	if err := p.ready(op); err != nil {
		return market.Agency{}, err
	}
	if agency.UpdatedAt.IsZero() {
		agency.UpdatedAt = time.Now().UTC()
	}
	_, err := execTag(ctx, p.pool, p.sb.Insert("agencies").
		Columns("id", "name", "contact_email", "phone", "updated_at").
		Values(agency.ID.String(), agency.Name, agency.ContactEmail, agency.Phone, agency.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, contact_email = EXCLUDED.contact_email,
phone = EXCLUDED.phone, updated_at = EXCLUDED.updated_at`))
	if err != nil {
		return market.Agency{}, market.Persistence(op, err)
	}
	return agency, nil
}

// SetContributorEmail registers the notification address of a contributor.
func (p *Postgres) SetContributorEmail(ctx context.Context, id market.ContributorID, email string) error {
	const op = "set contributor email"
	if err := p.ready(op); err != nil {
		return err
	}
	_, err := execTag(ctx, p.pool, p.sb.Insert("contributors").Columns("id", "email").
		Values(id.String(), email).Suffix("ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email"))
	return market.Persistence(op, err)
}

// ContributorEmail resolves the notification address of a contributor.
func (p *Postgres) ContributorEmail(ctx context.Context, id market.ContributorID) (string, error) {
	const op = "contributor email"
	if err := p.ready(op); err != nil {
		return "", err
	}
	row, err := p.queryRow(ctx, p.sb.Select("email").From("contributors").Where(sq.Eq{"id": id.String()}))
	if err != nil {
		return "", market.Persistence(op, err)
	}
	var email string
	if err := row.Scan(&email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", market.ErrNotFound
		}
		return "", market.Persistence(op, err)
	}
	if email == "" {
		return "", market.ErrNotFound
	}
	return email, nil
}
