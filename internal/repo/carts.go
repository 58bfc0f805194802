package repo

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/datanexus/internal/market"
)

// ReadCart returns the agency's cart, empty with version zero when none exists.
func (p *Postgres) ReadCart(ctx context.Context, agency market.AgencyID) (market.Cart, error) {
	const op = "read cart"
	if err := p.ready(op); err != nil {
		return market.Cart{}, err
	}
	cart := market.Cart{Agency: agency, Lines: []market.CartLine{}}
	row, err := p.queryRow(ctx, p.sb.Select("version").From("carts").Where(sq.Eq{"agency_id": agency.String()}))
	if err != nil {
		return market.Cart{}, market.Persistence(op, err)
	}
	if err := row.Scan(&cart.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart, nil
		}
		return market.Cart{}, market.Persistence(op, err)
	}
	rows, err := p.query(ctx, p.sb.Select("id", "category", "added_at").From("cart_lines").
		Where(sq.Eq{"agency_id": agency.String()}).OrderBy("position ASC"))
	if err != nil {
		return market.Cart{}, market.Persistence(op, err)
	}
	defer rows.Close()
	for rows.Next() {
		var line market.CartLine
		if err := rows.Scan(&line.ID, &line.Category, &line.AddedAt); err != nil {
			return market.Cart{}, market.Persistence(op, err)
		}
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return market.Cart{}, market.Persistence(op, err)
	}
	return cart, nil
}

// WriteCart replaces the cart lines when cart.Version still matches the stored
// version, returning the cart with its new version. A stale version reports
// ErrCartConflict.
func (p *Postgres) WriteCart(ctx context.Context, cart market.Cart) (market.Cart, error) {
	const op = "write cart"
	if err := p.ready(op); err != nil {
		return market.Cart{}, err
	}
	agency := cart.Agency.String()
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := execTag(ctx, tx, cartVersionQuery(p.sb, agency, cart.Version, time.Now().UTC()))
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return market.ErrCartConflict
		}
		if _, err := execTag(ctx, tx, p.sb.Delete("cart_lines").Where(sq.Eq{"agency_id": agency})); err != nil {
			return err
		}
		if len(cart.Lines) == 0 {
			return nil
		}
		insert := p.sb.Insert("cart_lines").Columns("id", "agency_id", "category", "added_at", "position")
		for i, line := range cart.Lines {
			insert = insert.Values(line.ID, agency, line.Category, line.AddedAt, i)
		}
		if _, err := execTag(ctx, tx, insert); err != nil {
			if isUniqueViolation(err) {
				return market.ErrDuplicateCategory
			}
			return err
		}
		return nil
	})
	if errors.Is(err, market.ErrDuplicateCategory) {
		return market.Cart{}, err
	}
	if err != nil {
		return market.Cart{}, market.Persistence(op, err)
	}
	next := cart
	next.Lines = append([]market.CartLine(nil), cart.Lines...)
	next.Version = cart.Version + 1
	return next, nil
}

// cartVersionQuery claims the next cart version. It affects no row when
// another writer got there first: the insert hits the existing cart, the
// update misses the stale version.
func cartVersionQuery(sb sq.StatementBuilderType, agency string, version int64, now time.Time) sq.Sqlizer {
	if version == 0 {
		return sb.Insert("carts").Columns("agency_id", "version", "updated_at").
			Values(agency, 1, now).Suffix("ON CONFLICT (agency_id) DO NOTHING")
	}
	return sb.Update("carts").
		Set("version", sq.Expr("version + 1")).
		Set("updated_at", now).
		Where(sq.Eq{"agency_id": agency, "version": version})
}
