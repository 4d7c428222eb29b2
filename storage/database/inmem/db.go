// Package inmemdb provides in-memory implementations of the core
// repositories, used by service and API tests.
package inmemdb

import (
	"context"
	"database/sql"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/assignment"
	"github.com/trezcool/darasa/core/catalog"
	"github.com/trezcool/darasa/core/class"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/core/wallet"
)

type DB struct {
	mu sync.RWMutex

	users         map[string]*user.User
	subjects      map[string]*catalog.Subject
	classes       map[string]*class.Class
	sessions      map[string]*session.ClassSession
	assignments   map[string]*assignment.Assignment
	submissions   map[string]*assignment.Submission
	wallets       map[string]*wallet.Wallet
	transactions  map[string]*wallet.Transaction
	withdrawals   map[string]*wallet.WithdrawalRequest
	notifications map[string]*notification.Notification
}

// BeginTx satisfies core.DB. The in-memory store applies writes directly,
// so the transactor snapshots every table up front; Rollback restores the
// snapshot and Commit discards it. Service code relying on transactional
// rollback behaves the same here as against Postgres.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.DBTransactor, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return &memTx{db: db, snap: db.snapshot()}, nil
}

func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return nil, errNotRelational
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return nil, errNotRelational
}

func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errNotRelational
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, errNotRelational
}

func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row { return nil }

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return nil
}

var errNotRelational = errors.New("inmemdb does not speak SQL")

type noopTx struct{}

func (noopTx) Exec(string, ...interface{}) (sql.Result, error) { return nil, errNotRelational }
func (noopTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errNotRelational
}
func (noopTx) Query(string, ...interface{}) (*sql.Rows, error) { return nil, errNotRelational }
func (noopTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errNotRelational
}
func (noopTx) QueryRow(string, ...interface{}) *sql.Row                         { return nil }
func (noopTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }
func (noopTx) Commit() error                                                    { return nil }
func (noopTx) Rollback() error                                                  { return nil }

// memTx rolls the store back to its snapshot unless committed first.
type memTx struct {
	noopTx
	db   *DB
	snap tables
	done bool
}

func (tx *memTx) Commit() error {
	tx.done = true
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done { // rollback after commit is a no-op, like database/sql
		return nil
	}
	tx.done = true
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	tx.db.restore(tx.snap)
	return nil
}

// tables is a point-in-time copy of every store, taken under db.mu.
// Rows are copied by value; repositories replace pointer fields rather
// than mutating through them, so a shallow row copy is enough.
type tables struct {
	users         map[string]*user.User
	subjects      map[string]*catalog.Subject
	classes       map[string]*class.Class
	sessions      map[string]*session.ClassSession
	assignments   map[string]*assignment.Assignment
	submissions   map[string]*assignment.Submission
	wallets       map[string]*wallet.Wallet
	transactions  map[string]*wallet.Transaction
	withdrawals   map[string]*wallet.WithdrawalRequest
	notifications map[string]*notification.Notification
}

func (db *DB) snapshot() tables {
	t := tables{
		users:         make(map[string]*user.User, len(db.users)),
		subjects:      make(map[string]*catalog.Subject, len(db.subjects)),
		classes:       make(map[string]*class.Class, len(db.classes)),
		sessions:      make(map[string]*session.ClassSession, len(db.sessions)),
		assignments:   make(map[string]*assignment.Assignment, len(db.assignments)),
		submissions:   make(map[string]*assignment.Submission, len(db.submissions)),
		wallets:       make(map[string]*wallet.Wallet, len(db.wallets)),
		transactions:  make(map[string]*wallet.Transaction, len(db.transactions)),
		withdrawals:   make(map[string]*wallet.WithdrawalRequest, len(db.withdrawals)),
		notifications: make(map[string]*notification.Notification, len(db.notifications)),
	}
	for k, v := range db.users {
		row := *v
		t.users[k] = &row
	}
	for k, v := range db.subjects {
		row := *v
		t.subjects[k] = &row
	}
	for k, v := range db.classes {
		row := *v
		t.classes[k] = &row
	}
	for k, v := range db.sessions {
		row := *v
		t.sessions[k] = &row
	}
	for k, v := range db.assignments {
		row := *v
		t.assignments[k] = &row
	}
	for k, v := range db.submissions {
		row := *v
		t.submissions[k] = &row
	}
	for k, v := range db.wallets {
		row := *v
		t.wallets[k] = &row
	}
	for k, v := range db.transactions {
		row := *v
		t.transactions[k] = &row
	}
	for k, v := range db.withdrawals {
		row := *v
		t.withdrawals[k] = &row
	}
	for k, v := range db.notifications {
		row := *v
		t.notifications[k] = &row
	}
	return t
}

func (db *DB) restore(t tables) {
	db.users = t.users
	db.subjects = t.subjects
	db.classes = t.classes
	db.sessions = t.sessions
	db.assignments = t.assignments
	db.submissions = t.submissions
	db.wallets = t.wallets
	db.transactions = t.transactions
	db.withdrawals = t.withdrawals
	db.notifications = t.notifications
}

var _ core.DB = (*DB)(nil)

func Open() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		subjects:      make(map[string]*catalog.Subject),
		classes:       make(map[string]*class.Class),
		sessions:      make(map[string]*session.ClassSession),
		assignments:   make(map[string]*assignment.Assignment),
		submissions:   make(map[string]*assignment.Submission),
		wallets:       make(map[string]*wallet.Wallet),
		transactions:  make(map[string]*wallet.Transaction),
		withdrawals:   make(map[string]*wallet.WithdrawalRequest),
		notifications: make(map[string]*notification.Notification),
	}
}

// Reset empties all tables.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = make(map[string]*user.User)
	db.subjects = make(map[string]*catalog.Subject)
	db.classes = make(map[string]*class.Class)
	db.sessions = make(map[string]*session.ClassSession)
	db.assignments = make(map[string]*assignment.Assignment)
	db.submissions = make(map[string]*assignment.Submission)
	db.wallets = make(map[string]*wallet.Wallet)
	db.transactions = make(map[string]*wallet.Transaction)
	db.withdrawals = make(map[string]*wallet.WithdrawalRequest)
	db.notifications = make(map[string]*notification.Notification)
}
