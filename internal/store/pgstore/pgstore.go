package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/slotmarket/internal/journal"
	"github.com/MarkoPoloResearchLab/slotmarket/pkg/purchase"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	constraintSubmissionTxHash = "purchase_submissions_tx_hash_key"
	pgUniqueViolationCode      = "23505"
	defaultListLimit           = 50
	maxListLimit               = 200
	errorOperationStore        = "store"
	errorSubjectSchema         = "schema"
	errorSubjectSubmission     = "submission"
	errorSubjectTransaction    = "transaction"
	errorCodeBegin             = "begin"
	errorCodeCommit            = "commit"
	errorCodeCreate            = "create"
	errorCodeDuplicate         = "duplicate"
	errorCodeGet               = "get"
	errorCodeInsert            = "insert"
	errorCodeInvalid           = "invalid"
	errorCodeList              = "list"
	errorCodeUpdateStatus      = "update_status"

	sqlCreateSchema = `
		create table if not exists purchase_submissions (
			submission_id uuid primary key default gen_random_uuid(),
			wallet text not null,
			property text not null,
			kind text not null,
			tx_hash text not null,
			amount_minor bigint not null,
			slot_ids jsonb not null default '[]'::jsonb,
			promo_hash text,
			status text not null,
			error_text text not null default '',
			created_at timestamptz not null,
			updated_at timestamptz not null
		);
		create unique index if not exists purchase_submissions_tx_hash_key on purchase_submissions(tx_hash);
		create index if not exists idx_submissions_wallet_created on purchase_submissions(wallet, created_at);
	`

	sqlInsertSubmission = `
		insert into purchase_submissions(
			submission_id, wallet, property, kind, tx_hash, amount_minor, slot_ids, promo_hash, status, error_text, created_at, updated_at
		)
		values(
			coalesce(nullif($1,'')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12
		)
	`

	sqlResolveSubmission = `
		update purchase_submissions
		set status = $2, error_text = $3, updated_at = now()
		where tx_hash = $1 and status = 'pending'
	`

	sqlCountSubmission = `select count(*) from purchase_submissions where tx_hash = $1`

	sqlSelectColumns = `
		select
			submission_id::text, wallet, property, kind, tx_hash, amount_minor,
			slot_ids::text, promo_hash, status, error_text, created_at, updated_at
		from purchase_submissions
	`

	sqlSelectByTxHash = sqlSelectColumns + ` where tx_hash = $1`

	sqlListByWallet = sqlSelectColumns + ` where wallet = $1 order by created_at desc limit $2`
)

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements journal.Store using a pgx connection pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
	queries
}

// TxStore implements journal.Store for an active transaction.
type TxStore struct {
	queries
}

type queries struct {
	db querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, queries: queries{db: pool}}
}

// EnsureSchema creates the journal table when it is missing.
func (store *Store) EnsureSchema(ctx context.Context) error {
	if _, err := store.pool.Exec(ctx, sqlCreateSchema); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeCreate, err)
	}
	return nil
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore journal.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	if err := fn(ctx, &TxStore{queries: queries{db: tx}}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store queries) Record(ctx context.Context, submission journal.Submission) error {
	arguments, err := insertArguments(submission, time.Now().UTC())
	if err != nil {
		return wrapStoreError(errorSubjectSubmission, errorCodeInvalid, err)
	}
	_, err = store.db.Exec(ctx, sqlInsertSubmission, arguments...)
	if isTxHashConflict(err) {
		return wrapStoreError(errorSubjectSubmission, errorCodeDuplicate, journal.ErrDuplicateSubmission)
	}
	if err != nil {
		return wrapStoreError(errorSubjectSubmission, errorCodeInsert, err)
	}
	return nil
}

func (store queries) Resolve(ctx context.Context, hash purchase.TxHash, status journal.Status, errorText string) error {
	if status == journal.StatusPending {
		return wrapStoreError(errorSubjectSubmission, errorCodeUpdateStatus, journal.ErrInvalidStatusTransition)
	}
	tag, err := store.db.Exec(ctx, sqlResolveSubmission, hash.String(), string(status), errorText)
	if err != nil {
		return wrapStoreError(errorSubjectSubmission, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var count int64
	if err := store.db.QueryRow(ctx, sqlCountSubmission, hash.String()).Scan(&count); err != nil {
		return wrapStoreError(errorSubjectSubmission, errorCodeUpdateStatus, err)
	}
	if count == 0 {
		return wrapStoreError(errorSubjectSubmission, errorCodeUpdateStatus, journal.ErrUnknownSubmission)
	}
	return wrapStoreError(errorSubjectSubmission, errorCodeUpdateStatus, journal.ErrInvalidStatusTransition)
}

func (store queries) Get(ctx context.Context, hash purchase.TxHash) (journal.Submission, error) {
	var row submissionRow
	err := store.db.QueryRow(ctx, sqlSelectByTxHash, hash.String()).Scan(row.targets()...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return journal.Submission{}, wrapStoreError(errorSubjectSubmission, errorCodeGet, journal.ErrUnknownSubmission)
		}
		return journal.Submission{}, wrapStoreError(errorSubjectSubmission, errorCodeGet, err)
	}
	submission, err := row.submission()
	if err != nil {
		return journal.Submission{}, wrapStoreError(errorSubjectSubmission, errorCodeInvalid, err)
	}
	return submission, nil
}

func (store queries) ListByWallet(ctx context.Context, wallet purchase.Address, limit int) ([]journal.Submission, error) {
	rows, err := store.db.Query(ctx, sqlListByWallet, wallet.Hex(), normalizeListLimit(limit))
	if err != nil {
		return nil, wrapStoreError(errorSubjectSubmission, errorCodeList, err)
	}
	defer rows.Close()
	submissions, err := scanSubmissions(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectSubmission, errorCodeInvalid, err)
	}
	return submissions, nil
}

// WithTx on a transaction store reuses the open transaction.
func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore journal.Store) error) error {
	return fn(ctx, store)
}

type submissionRow struct {
	id        string
	wallet    string
	property  string
	kind      string
	txHash    string
	amount    int64
	slotsJSON string
	promoHash *string
	status    string
	errorText string
	createdAt time.Time
	updatedAt time.Time
}

func (row *submissionRow) targets() []any {
	return []any{
		&row.id,
		&row.wallet,
		&row.property,
		&row.kind,
		&row.txHash,
		&row.amount,
		&row.slotsJSON,
		&row.promoHash,
		&row.status,
		&row.errorText,
		&row.createdAt,
		&row.updatedAt,
	}
}

func (row submissionRow) submission() (journal.Submission, error) {
	wallet, err := purchase.NewAddress(row.wallet)
	if err != nil {
		return journal.Submission{}, err
	}
	property, err := purchase.NewAddress(row.property)
	if err != nil {
		return journal.Submission{}, err
	}
	kind, err := journal.ParseKind(row.kind)
	if err != nil {
		return journal.Submission{}, err
	}
	txHash, err := purchase.NewTxHash(row.txHash)
	if err != nil {
		return journal.Submission{}, err
	}
	amount, err := purchase.NewAmount(row.amount)
	if err != nil {
		return journal.Submission{}, err
	}
	var rawSlots []int
	if err := json.Unmarshal([]byte(row.slotsJSON), &rawSlots); err != nil {
		return journal.Submission{}, err
	}
	slots := make([]purchase.SlotID, len(rawSlots))
	for index, raw := range rawSlots {
		slots[index] = purchase.SlotID(raw)
	}
	var promoHash *purchase.PromoHash
	if row.promoHash != nil {
		parsed, err := purchase.NewPromoHash(*row.promoHash)
		if err != nil {
			return journal.Submission{}, err
		}
		promoHash = &parsed
	}
	status, err := journal.ParseStatus(row.status)
	if err != nil {
		return journal.Submission{}, err
	}
	return journal.Submission{
		ID:        row.id,
		Wallet:    wallet,
		Property:  property,
		Kind:      kind,
		TxHash:    txHash,
		Amount:    amount,
		Slots:     slots,
		PromoHash: promoHash,
		Status:    status,
		ErrorText: row.errorText,
		CreatedAt: row.createdAt.UTC(),
		UpdatedAt: row.updatedAt.UTC(),
	}, nil
}

func scanSubmissions(rows pgx.Rows) ([]journal.Submission, error) {
	submissions := make([]journal.Submission, 0, 32)
	for rows.Next() {
		var row submissionRow
		if err := rows.Scan(row.targets()...); err != nil {
			return nil, err
		}
		submission, err := row.submission()
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	return submissions, rows.Err()
}

func insertArguments(submission journal.Submission, now time.Time) ([]any, error) {
	rawSlots := make([]int, len(submission.Slots))
	for index, slot := range submission.Slots {
		rawSlots[index] = slot.Int()
	}
	slotsJSON, err := json.Marshal(rawSlots)
	if err != nil {
		return nil, err
	}
	var promoHash *string
	if submission.PromoHash != nil {
		value := submission.PromoHash.Hex()
		promoHash = &value
	}
	status := submission.Status
	if status == "" {
		status = journal.StatusPending
	}
	createdAt := submission.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := submission.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	return []any{
		submission.ID,
		submission.Wallet.Hex(),
		submission.Property.Hex(),
		string(submission.Kind),
		submission.TxHash.String(),
		submission.Amount.Int64(),
		string(slotsJSON),
		promoHash,
		string(status),
		submission.ErrorText,
		createdAt,
		updatedAt,
	}, nil
}

func normalizeListLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func wrapStoreError(subject string, code string, err error) error {
	return purchase.WrapError(errorOperationStore, subject, code, err)
}

func isTxHashConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintSubmissionTxHash
	}
	return false
}
