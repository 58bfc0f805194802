package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/datanexus/internal/market"
)

var submissionColumns = []string{
	"id", "owner_id", "category", "title", "blob_url", "quality_score",
	"sold_to", "payout", "sold_price", "transaction_date", "created_at",
	"reserved_by", "reserved_until",
}

func scanSubmission(row pgx.Row) (market.Submission, error) {
	var (
		sub        market.Submission
		owner      string
		soldTo     *string
		reservedBy *string
	)
	err := row.Scan(&sub.ID, &owner, &sub.Category, &sub.Title, &sub.BlobURL, &sub.QualityScore,
		&soldTo, &sub.Payout, &sub.SoldPrice, &sub.TransactionDate, &sub.CreatedAt,
		&reservedBy, &sub.ReservedUntil)
	if err != nil {
		return market.Submission{}, err
	}
	ownerID, err := market.NewContributorID(owner)
	if err != nil {
		return market.Submission{}, err
	}
	sub.OwnerID = ownerID
	if soldTo != nil {
		agency, err := market.NewAgencyID(*soldTo)
		if err != nil {
			return market.Submission{}, err
		}
		sub.SoldTo = &agency
	}
	if reservedBy != nil {
		sub.ReservedBy = *reservedBy
	}
	return sub, nil
}

func collectSubmissions(rows pgx.Rows) ([]market.Submission, error) {
	defer rows.Close()
	out := make([]market.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// InsertSubmission stores a new submission.
func (p *Postgres) InsertSubmission(ctx context.Context, sub market.Submission) (market.Submission, error) {
	const op = "insert submission"
	if err := p.ready(op); err != nil {
		return market.Submission{}, err
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	row, err := p.queryRow(ctx, p.sb.Insert("submissions").
		Columns("id", "owner_id", "category", "title", "blob_url", "quality_score", "created_at").
		Values(sub.ID, sub.OwnerID.String(), sub.Category, sub.Title, sub.BlobURL, sub.QualityScore, sub.CreatedAt).
		Suffix("RETURNING " + strings.Join(submissionColumns, ", ")))
	if err != nil {
		return market.Submission{}, market.Persistence(op, err)
	}
	stored, err := scanSubmission(row)
	if err != nil {
		return market.Submission{}, market.Persistence(op, err)
	}
	return stored, nil
}

// GetSubmission fetches a submission by id.
func (p *Postgres) GetSubmission(ctx context.Context, id string) (market.Submission, error) {
	const op = "get submission"
	if err := p.ready(op); err != nil {
		return market.Submission{}, err
	}
	row, err := p.queryRow(ctx, p.sb.Select(submissionColumns...).From("submissions").Where(sq.Eq{"id": id}))
	if err != nil {
		return market.Submission{}, market.Persistence(op, err)
	}
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Submission{}, market.ErrNotFound
	}
	if err != nil {
		return market.Submission{}, market.Persistence(op, err)
	}
	return sub, nil
}

// DeleteUnsoldSubmission removes an unsold, unreserved submission owned by
// owner. A missing or foreign submission reports ErrNotFound.
func (p *Postgres) DeleteUnsoldSubmission(ctx context.Context, owner market.ContributorID, id string, now time.Time) (market.Submission, error) {
	const op = "delete submission"
	if err := p.ready(op); err != nil {
		return market.Submission{}, err
	}
	var deleted market.Submission
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		query, args, err := p.sb.Select(submissionColumns...).From("submissions").
			Where(sq.Eq{"id": id, "owner_id": owner.String()}).Suffix("FOR UPDATE").ToSql()
		if err != nil {
			return err
		}
		sub, err := scanSubmission(tx.QueryRow(ctx, query, args...))
		if errors.Is(err, pgx.ErrNoRows) {
			return market.ErrNotFound
		}
		if err != nil {
			return err
		}
		if sub.Sold() {
			return market.ErrAlreadySold
		}
		if sub.ReservedAt(now) {
			return market.ErrAlreadyClaimed
		}
		if _, err := execTag(ctx, tx, p.sb.Delete("submissions").Where(sq.Eq{"id": id})); err != nil {
			return err
		}
		deleted = sub
		return nil
	})
	if err != nil {
		return market.Submission{}, market.Persistence(op, err)
	}
	return deleted, nil
}

// ListByOwner returns every submission of owner, oldest first.
func (p *Postgres) ListByOwner(ctx context.Context, owner market.ContributorID) ([]market.Submission, error) {
	const op = "list by owner"
	if err := p.ready(op); err != nil {
		return nil, err
	}
	rows, err := p.query(ctx, p.sb.Select(submissionColumns...).From("submissions").
		Where(sq.Eq{"owner_id": owner.String()}).OrderBy("created_at ASC", "id ASC"))
	if err != nil {
		return nil, market.Persistence(op, err)
	}
	subs, err := collectSubmissions(rows)
	if err != nil {
		return nil, market.Persistence(op, err)
	}
	return subs, nil
}

// ListUnsoldByCategory returns up to limit claimable submissions of category
// ordered by (created_at, id).
func (p *Postgres) ListUnsoldByCategory(ctx context.Context, category string, now time.Time, limit int) ([]market.Submission, error) {
	const op = "list unsold"
	if err := p.ready(op); err != nil {
		return nil, err
	}
	rows, err := p.query(ctx, listUnsoldQuery(p.sb, category, now, limit))
	if err != nil {
		return nil, market.Persistence(op, err)
	}
	subs, err := collectSubmissions(rows)
	if err != nil {
		return nil, market.Persistence(op, err)
	}
	return subs, nil
}

// Reserve claims a submission for a settlement. The update only matches rows
// that are unsold and not actively reserved.
func (p *Postgres) Reserve(ctx context.Context, r market.Reservation) error {
	const op = "reserve"
	if err := p.ready(op); err != nil {
		return err
	}
	tag, err := execTag(ctx, p.pool, reserveQuery(p.sb, r))
	if err != nil {
		return market.Persistence(op, err)
	}
	if tag.RowsAffected() != 1 {
		return market.ErrAlreadyClaimed
	}
	return nil
}

// CommitSale marks every item sold inside one transaction. Any row that is no
// longer reserved by the settlement aborts the whole batch.
func (p *Postgres) CommitSale(ctx context.Context, sale market.Sale) error {
	const op = "commit sale"
	if err := p.ready(op); err != nil {
		return err
	}
	err := pgx.BeginTxFunc(ctx, p.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, item := range sale.Items {
			tag, err := execTag(ctx, tx, commitItemQuery(p.sb, sale, item))
			if err != nil {
				return err
			}
			if tag.RowsAffected() != 1 {
				return market.ErrAlreadyClaimed
			}
		}
		return nil
	})
	return market.Persistence(op, err)
}

// Release drops reservations held by settlementID.
func (p *Postgres) Release(ctx context.Context, settlementID string, ids []string) error {
	const op = "release"
	if len(ids) == 0 {
		return nil
	}
	if err := p.ready(op); err != nil {
		return err
	}
	_, err := execTag(ctx, p.pool, releaseQuery(p.sb, settlementID, ids))
	return market.Persistence(op, err)
}

// ListSoldTo returns the submissions bought by agency, newest first.
func (p *Postgres) ListSoldTo(ctx context.Context, agency market.AgencyID) ([]market.Submission, error) {
	const op = "list sold"
	if err := p.ready(op); err != nil {
		return nil, err
	}
	rows, err := p.query(ctx, p.sb.Select(submissionColumns...).From("submissions").
		Where(sq.Eq{"sold_to": agency.String()}).OrderBy("transaction_date DESC", "id ASC"))
	if err != nil {
		return nil, market.Persistence(op, err)
	}
	subs, err := collectSubmissions(rows)
	if err != nil {
		return nil, market.Persistence(op, err)
	}
	return subs, nil
}

// CountUnsoldByCategory returns unsold stock per category sorted by name.
func (p *Postgres) CountUnsoldByCategory(ctx context.Context) ([]market.CategoryStock, error) {
	const op = "count unsold"
	if err := p.ready(op); err != nil {
		return nil, err
	}
	rows, err := p.query(ctx, p.sb.Select("category", "COUNT(*)").From("submissions").
		Where(sq.Eq{"sold_to": nil}).GroupBy("category").OrderBy("category ASC"))
	if err != nil {
		return nil, market.Persistence(op, err)
	}
	defer rows.Close()
	out := make([]market.CategoryStock, 0)
	for rows.Next() {
		var stock market.CategoryStock
		if err := rows.Scan(&stock.Category, &stock.Unsold); err != nil {
			return nil, market.Persistence(op, err)
		}
		out = append(out, stock)
	}
	if err := rows.Err(); err != nil {
		return nil, market.Persistence(op, err)
	}
	return out, nil
}

// claimable matches rows that are unsold with no live reservation at now.
func claimable(now time.Time) sq.Sqlizer {
	return sq.And{
		sq.Eq{"sold_to": nil},
		sq.Or{sq.Eq{"reserved_by": nil}, sq.LtOrEq{"reserved_until": now}},
	}
}

func listUnsoldQuery(sb sq.StatementBuilderType, category string, now time.Time, limit int) sq.SelectBuilder {
	b := sb.Select(submissionColumns...).From("submissions").
		Where(sq.Eq{"category": category}).
		Where(claimable(now)).
		OrderBy("created_at ASC", "id ASC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return b
}

func reserveQuery(sb sq.StatementBuilderType, r market.Reservation) sq.UpdateBuilder {
	return sb.Update("submissions").
		Set("reserved_by", r.SettlementID).
		Set("reserved_until", r.Until).
		Where(sq.Eq{"id": r.SubmissionID}).
		Where(claimable(r.Now))
}

// commitItemQuery only matches a row still held by the sale's settlement.
func commitItemQuery(sb sq.StatementBuilderType, sale market.Sale, item market.SaleItem) sq.UpdateBuilder {
	return sb.Update("submissions").
		Set("sold_to", sale.Agency.String()).
		Set("payout", item.Payout).
		Set("sold_price", item.Payout).
		Set("transaction_date", sale.SoldAt).
		Set("reserved_by", nil).
		Set("reserved_until", nil).
		Where(sq.Eq{"id": item.SubmissionID, "sold_to": nil, "reserved_by": sale.SettlementID})
}

func releaseQuery(sb sq.StatementBuilderType, settlementID string, ids []string) sq.UpdateBuilder {
	return sb.Update("submissions").
		Set("reserved_by", nil).
		Set("reserved_until", nil).
		Where(sq.Eq{"id": ids, "reserved_by": settlementID, "sold_to": nil})
}
