/*
Package sqlite provides the SQLite-backed loan.Store implementation.

PURPOSE:
  Persists whole loan aggregates. The aggregate is the unit of
  consistency, so Save writes everything - account row, installments,
  transactions, charges - in one database transaction; a reader never
  observes a half-saved replay.

STORAGE LAYOUT:
  loans:             one row per aggregate; the full state as JSON plus
                     the hot columns (status, version) other queries need
  loan_transactions: read-model projection of the ledger, rewritten on
                     save; reporting and reconciliation queries hit this
                     instead of parsing aggregate JSON

  The JSON column is the source of truth. The projection is derived and
  carries no state of its own.

OPTIMISTIC CONCURRENCY:
  Save compares the aggregate's Version against the stored row and
  rejects stale writers with a ConflictError. The per-loan lock registry
  makes this a belt-and-suspenders check within one process; it matters
  when two processes share the file.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/loans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := loan.NewService(store, calendar)

SEE ALSO:
  - loan/store.go: the Store contract
  - loan/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/loan-engine/loan"
)

// Store implements loan.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// The engine serializes writers per loan; a single connection keeps
	// SQLite's own locking out of the picture.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Aggregates. aggregate_json is the source of truth; the explicit
	-- columns exist for queries that must not parse JSON.
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		aggregate_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);
	CREATE INDEX IF NOT EXISTS idx_loans_product ON loans(product_id);

	-- Ledger projection, rewritten on every save. Derived data only.
	CREATE TABLE IF NOT EXISTS loan_transactions (
		id TEXT NOT NULL,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		external_id TEXT,
		tx_type TEXT NOT NULL,
		tx_date TEXT NOT NULL,
		seq INTEGER NOT NULL,
		amount TEXT NOT NULL,
		reversed INTEGER NOT NULL DEFAULT 0,
		replay_generation INTEGER NOT NULL DEFAULT 0,
		outstanding_after TEXT NOT NULL,
		PRIMARY KEY (loan_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_loan_transactions_date
		ON loan_transactions(loan_id, tx_date, seq);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_loan_transactions_external
		ON loan_transactions(loan_id, external_id) WHERE external_id IS NOT NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOAN STORE (loan.Store interface)
// =============================================================================

// Load returns the full aggregate or loan.ErrLoanNotFound.
func (s *Store) Load(ctx context.Context, id loan.LoanID) (*loan.Account, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT aggregate_json FROM loans WHERE id = ?`, string(id),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, loan.ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load loan %s: %w", id, err)
	}

	var acct loan.Account
	if err := json.Unmarshal([]byte(raw), &acct); err != nil {
		return nil, fmt.Errorf("failed to decode loan %s: %w", id, err)
	}
	return &acct, nil
}

// Save persists the aggregate and rewrites its ledger projection in one
// database transaction.
func (s *Store) Save(ctx context.Context, acct *loan.Account) error {
	raw, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("failed to encode loan %s: %w", acct.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var storedVersion int
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM loans WHERE id = ?`, string(acct.ID),
	).Scan(&storedVersion)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO loans (id, product_id, currency, status, version, aggregate_json, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			string(acct.ID), string(acct.ProductID), acct.Currency, string(acct.Status),
			acct.Version, string(raw), now())
	case err != nil:
		return fmt.Errorf("failed to read loan version: %w", err)
	case acct.Version < storedVersion:
		return &loan.ConflictError{Reason: "stale save: aggregate version behind store"}
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE loans SET status = ?, version = ?, aggregate_json = ?, updated_at = ?
			WHERE id = ?`,
			string(acct.Status), acct.Version, string(raw), now(), string(acct.ID))
	}
	if err != nil {
		return fmt.Errorf("failed to save loan %s: %w", acct.ID, err)
	}

	if err := s.rewriteProjection(ctx, tx, acct); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) rewriteProjection(ctx context.Context, tx *sql.Tx, acct *loan.Account) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM loan_transactions WHERE loan_id = ?`, string(acct.ID)); err != nil {
		return fmt.Errorf("failed to clear projection: %w", err)
	}
	if len(acct.Transactions) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO loan_transactions
		(id, loan_id, external_id, tx_type, tx_date, seq, amount, reversed, replay_generation, outstanding_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare projection insert: %w", err)
	}
	defer stmt.Close()

	for i := range acct.Transactions {
		t := &acct.Transactions[i]
		if _, err := stmt.ExecContext(ctx,
			string(t.ID), string(acct.ID), nullString(t.ExternalID), string(t.Type),
			t.Date.String(), t.Seq, t.Amount.Amount.String(), boolToInt(t.Reversed),
			t.ReplayGeneration, t.OutstandingAfter.Amount.String(),
		); err != nil {
			if isUniqueConstraintError(err) {
				return &loan.ConflictError{
					Reason: "external id already used: " + t.ExternalID,
					Cause:  loan.ErrDuplicateExternalID,
				}
			}
			return fmt.Errorf("failed to project transaction %s: %w", t.ID, err)
		}
	}
	return nil
}

// List returns all loan ids.
func (s *Store) List(ctx context.Context) ([]loan.LoanID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM loans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var ids []loan.LoanID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, loan.LoanID(id))
	}
	return ids, rows.Err()
}

// ListByStatus returns loan ids in the given status. Reporting path; the
// COB driver itself re-checks status under the lock.
func (s *Store) ListByStatus(ctx context.Context, status loan.LoanStatus) ([]loan.LoanID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM loans WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list loans by status: %w", err)
	}
	defer rows.Close()

	var ids []loan.LoanID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, loan.LoanID(id))
	}
	return ids, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
