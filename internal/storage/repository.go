// Package storage keeps the tracker document in a SQL database. Rows carry a
// position column so list order survives a round trip.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	ports "tally/internal/sheets"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string { return string(d) }

// rebind rewrites ? placeholders to $n for Postgres.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	selectTransactionsSQL = `SELECT id, date, description, category, amount, account, recurring, group_id
		FROM transactions ORDER BY position`
	selectBudgetsSQL = `SELECT month, year, budget FROM budgets ORDER BY position`

	insertTransactionSQL = `INSERT INTO transactions
		(position, id, date, description, category, amount, account, recurring, group_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertBudgetSQL = `INSERT INTO budgets (position, month, year, budget) VALUES (?, ?, ?, ?)`
)

type Repository struct {
	db      *sql.DB
	dialect Dialect
}

var _ ports.DocumentStore = (*Repository)(nil)

// OpenSQLite opens (creating if needed) the database file at dbPath and
// migrates it.
func OpenSQLite(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(SQLite, dbPath)
}

// OpenPostgres connects with dsn and migrates the schema.
func OpenPostgres(dsn string) (*Repository, error) {
	return open(Postgres, dsn)
}

func open(d Dialect, dsn string) (*Repository, error) {
	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d, err)
	}
	if d == SQLite {
		// One writer at a time; the document is replaced wholesale anyway.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(d, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Repository{db: db, dialect: d}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Dialect() Dialect { return r.dialect }

// Load reads the whole document in stored order.
func (r *Repository) Load(ctx context.Context) (core.Document, error) {
	doc := core.Document{Budgets: []core.BudgetEntry{}, Transactions: []core.Transaction{}}

	rows, err := r.db.QueryContext(ctx, selectTransactionsSQL)
	if err != nil {
		return core.Document{}, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tx      core.Transaction
			id      string
			amount  decimal.Decimal
			flag    bool
			groupID sql.NullString
		)
		if err := rows.Scan(&id, &tx.Date, &tx.Description, &tx.Category, &amount, &tx.Account, &flag, &groupID); err != nil {
			return core.Document{}, fmt.Errorf("scan transaction: %w", err)
		}
		tx.ID = core.ID(id)
		tx.Amount = core.AmountFromDecimal(amount)
		tx.Recurring = core.Flag(flag)
		if groupID.Valid {
			tx.GroupID = core.ID(groupID.String)
		}
		doc.Transactions = append(doc.Transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return core.Document{}, fmt.Errorf("iterate transactions: %w", err)
	}

	brows, err := r.db.QueryContext(ctx, selectBudgetsSQL)
	if err != nil {
		return core.Document{}, fmt.Errorf("query budgets: %w", err)
	}
	defer brows.Close()
	for brows.Next() {
		var (
			b      core.BudgetEntry
			budget decimal.Decimal
		)
		if err := brows.Scan(&b.Month, &b.Year, &budget); err != nil {
			return core.Document{}, fmt.Errorf("scan budget: %w", err)
		}
		b.Budget = core.AmountFromDecimal(budget)
		doc.Budgets = append(doc.Budgets, b)
	}
	if err := brows.Err(); err != nil {
		return core.Document{}, fmt.Errorf("iterate budgets: %w", err)
	}
	return doc, nil
}

// Save replaces every stored row with doc inside one SQL transaction.
func (r *Repository) Save(ctx context.Context, doc core.Document) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"transactions", "budgets"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	insTx, err := tx.PrepareContext(ctx, r.dialect.rebind(insertTransactionSQL))
	if err != nil {
		return fmt.Errorf("prepare transaction insert: %w", err)
	}
	defer insTx.Close()
	for i, t := range doc.Transactions {
		var groupID sql.NullString
		if !t.GroupID.IsZero() {
			groupID = sql.NullString{String: t.GroupID.String(), Valid: true}
		}
		if _, err = insTx.ExecContext(ctx, i, t.ID.String(), t.Date, t.Description, t.Category,
			t.Amount.String(), t.Account, bool(t.Recurring), groupID); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}

	insBudget, err := tx.PrepareContext(ctx, r.dialect.rebind(insertBudgetSQL))
	if err != nil {
		return fmt.Errorf("prepare budget insert: %w", err)
	}
	defer insBudget.Close()
	for i, b := range doc.Budgets {
		if _, err = insBudget.ExecContext(ctx, i, b.Month, b.Year, b.Budget.String()); err != nil {
			return fmt.Errorf("insert budget %s %d: %w", b.Month, b.Year, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
