// Package testutil provides fixtures and deterministic helpers for tests.
package testutil

import (
	"github.com/roach88/docsql/internal/ir"
	"github.com/roach88/docsql/internal/memdb"
	"github.com/roach88/docsql/internal/native"
)

// ShopDB returns a small order database:
//
//	orders:    3 documents; items is an array of {sku, qty}, shipping a
//	           subdocument missing from order 3
//	customers: 2 documents
func ShopDB() *memdb.DB {
	db := memdb.New()
	db.Insert("orders",
		ir.D(
			ir.F("_id", ir.Int32(1)),
			ir.F("customer", ir.Int32(1)),
			ir.F("total", ir.Int32(30)),
			ir.F("items", ir.A(
				ir.D(ir.F("sku", ir.String("a")), ir.F("qty", ir.Int32(2))),
				ir.D(ir.F("sku", ir.String("b")), ir.F("qty", ir.Int32(1))),
			)),
			ir.F("shipping", ir.D(ir.F("city", ir.String("Oslo")))),
		),
		ir.D(
			ir.F("_id", ir.Int32(2)),
			ir.F("customer", ir.Int32(2)),
			ir.F("total", ir.Int32(5)),
			ir.F("items", ir.A()),
			ir.F("shipping", ir.D(ir.F("city", ir.String("Rome")))),
		),
		ir.D(
			ir.F("_id", ir.Int32(3)),
			ir.F("customer", ir.Int32(1)),
			ir.F("total", ir.Int32(12)),
			ir.F("items", ir.A(
				ir.D(ir.F("sku", ir.String("a")), ir.F("qty", ir.Int32(5))),
			)),
		),
	)
	db.Insert("customers",
		ir.D(ir.F("_id", ir.Int32(1)), ir.F("name", ir.String("ada"))),
		ir.D(ir.F("_id", ir.Int32(2)), ir.F("name", ir.String("bob"))),
	)
	return db
}

// Collections returns every collection of db, in name order.
func Collections(db *memdb.DB) []native.Collection {
	names := db.Collections()
	out := make([]native.Collection, len(names))
	for i, name := range names {
		out[i] = db.Collection(name)
	}
	return out
}
