// Package harness runs conformance scenarios end to end on the in-memory
// database.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: shop
//	description: "What this scenario validates"
//	data: ../data/shop            # Extended JSON files, one per collection
//	collections:                  # and/or inline documents
//	  customers:
//	    - {_id: 1, name: ada}
//	discovery:
//	  sample_size: 100
//	  scan_method: forward
//	schema:
//	  - type: column
//	    table: orders_items
//	    column: qty
//	    sql_type: INTEGER
//	queries:
//	  - name: items
//	    plan: |
//	      plan: {from: "orders_items", select: ["sku"]}
//	    expect:
//	      columns: [sku]
//	      rows: [[a], [b]]
//
// # Assertion Types
//
//   - table_exists, table_absent: the discovered schema has (or lacks) a table
//   - column: a column exists, optionally with sql_type, nullable and path
//   - primary_key: a table's primary key columns
//   - foreign_key: a child table's reference to its parent
//
// # Deterministic Testing
//
// Every run uses a fresh database and schema store, a single discovery
// worker and sequential query ids, so a scenario's Snapshot is identical
// across runs and can be compared with a golden file (RunWithGolden).
package harness
