package memdb

import (
	"context"
	"slices"
	"sync"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// Tables is the whole in-memory dataset. Repositories only touch it through DB.Do.
type Tables struct {
	Products     map[string]model.Product
	Inventories  map[string]model.Inventory // keyed by product id
	Movements    []model.StockMovement
	Batches      map[string]model.Batch
	Orders       map[string]model.Order
	Transactions map[string]model.Transaction // keyed by receipt number
}

func newTables() *Tables {
	return &Tables{
		Products:     map[string]model.Product{},
		Inventories:  map[string]model.Inventory{},
		Batches:      map[string]model.Batch{},
		Orders:       map[string]model.Order{},
		Transactions: map[string]model.Transaction{},
	}
}

func (t *Tables) clone() *Tables {
	c := &Tables{
		Products:     make(map[string]model.Product, len(t.Products)),
		Inventories:  make(map[string]model.Inventory, len(t.Inventories)),
		Movements:    slices.Clone(t.Movements),
		Batches:      make(map[string]model.Batch, len(t.Batches)),
		Orders:       make(map[string]model.Order, len(t.Orders)),
		Transactions: make(map[string]model.Transaction, len(t.Transactions)),
	}
	for k, v := range t.Products {
		c.Products[k] = v
	}
	for k, v := range t.Inventories {
		c.Inventories[k] = v
	}
	for k, v := range t.Batches {
		c.Batches[k] = v
	}
	for k, v := range t.Orders {
		v.Items = slices.Clone(v.Items)
		c.Orders[k] = v
	}
	for k, v := range t.Transactions {
		v.Items = slices.Clone(v.Items)
		if v.Payment != nil {
			p := *v.Payment
			v.Payment = &p
		}
		c.Transactions[k] = v
	}
	return c
}

// DB is an in-memory store with the transactional contract of the Postgres
// repositories: transactions are serialised and roll back to a snapshot on error.
type DB struct {
	mu     sync.Mutex
	tables *Tables
}

type txKey struct{ db *DB }

func New() *DB {
	return &DB{tables: newTables()}
}

// InTransaction reports whether ctx carries a transaction of this DB.
func (d *DB) InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{db: d}).(bool)
	return ok
}

func (d *DB) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if d.InTransaction(ctx) {
		return fn(ctx)
	}

	d.mu.Lock()
	snapshot := d.tables.clone()
	committed := false
	defer func() {
		if !committed {
			d.tables = snapshot
		}
		d.mu.Unlock()
	}()

	if err := fn(context.WithValue(ctx, txKey{db: d}, true)); err != nil {
		return err
	}
	committed = true
	return nil
}

// Do runs fn against the tables, joining the transaction carried by ctx or
// taking the lock for a single statement otherwise.
func (d *DB) Do(ctx context.Context, fn func(t *Tables) error) error {
	if d.InTransaction(ctx) {
		return fn(d.tables)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.tables)
}
