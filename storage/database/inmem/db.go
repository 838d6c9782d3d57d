package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/finance"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/school"
	"github.com/Jackson-sch/sistema-escolar-pro-sub001/core/user"
)

type (
	// DB is an in-memory database, safe for concurrent use.
	// A single lock guards every table so that DB transactions serialize like SERIALIZABLE ones.
	DB struct {
		mu sync.RWMutex
		tables
	}

	tables struct {
		users        map[string]user.User
		institutions map[string]school.Institution
		sections     map[string]school.Section
		students     map[string]school.Student
		concepts     map[string]finance.Concept
		entries      map[string]finance.ScheduleEntry
		payments     map[string]finance.PaymentRecord
		vouchers     map[string]finance.Voucher
	}
)

func Open() *DB {
	return &DB{tables: tables{
		users:        make(map[string]user.User),
		institutions: make(map[string]school.Institution),
		sections:     make(map[string]school.Section),
		students:     make(map[string]school.Student),
		concepts:     make(map[string]finance.Concept),
		entries:      make(map[string]finance.ScheduleEntry),
		payments:     make(map[string]finance.PaymentRecord),
		vouchers:     make(map[string]finance.Voucher),
	}}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (t tables) snapshot() tables {
	return tables{
		users:        copyMap(t.users),
		institutions: copyMap(t.institutions),
		sections:     copyMap(t.sections),
		students:     copyMap(t.students),
		concepts:     copyMap(t.concepts),
		entries:      copyMap(t.entries),
		payments:     copyMap(t.payments),
		vouchers:     copyMap(t.vouchers),
	}
}

// Flush empties every table.
func (db *DB) Flush() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables = Open().tables
}

// access runs fn under the read (or write) lock, unless already inside a transaction.
type access struct {
	db   *DB
	inTx bool
}

func (a access) read(fn func(t *tables) error) error {
	if !a.inTx {
		a.db.mu.RLock()
		defer a.db.mu.RUnlock()
	}
	return fn(&a.db.tables)
}

func (a access) write(fn func(t *tables) error) error {
	if !a.inTx {
		a.db.mu.Lock()
		defer a.db.mu.Unlock()
	}
	return fn(&a.db.tables)
}

// atomic runs fn holding the write lock; every table is restored if fn fails.
func (a access) atomic(fn func(tx access) error) error {
	if a.inTx {
		return fn(a)
	}
	a.db.mu.Lock()
	defer a.db.mu.Unlock()

	backup := a.db.tables.snapshot()
	if err := fn(access{db: a.db, inTx: true}); err != nil {
		a.db.tables = backup
		return err
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}
