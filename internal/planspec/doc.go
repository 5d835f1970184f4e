// Package planspec reads relational plans written in CUE.
//
// A plan file defines a top-level plan struct:
//
//	plan: {
//		from: "orders"
//		join: [{table: "customers", on: {eq: ["orders.customer", "customers._id"]}}]
//		where: {gt: ["orders.total", 10]}
//		select: ["customers.name", {expr: {mul: ["total", 2]}, as: "double"}]
//		order_by: [{expr: "total", desc: true}]
//		limit: 5
//	}
//
// Expressions are written as:
//
//   - a string: a column reference, "column" or "table.column"
//   - a number, bool or null: a literal
//   - {lit: value, type?: "int"|"long"|"double"|"decimal"|"string"|"date"|"objectId"}
//   - {col: "column", table?: "table"}
//   - {agg: "label"}: an aggregate output, in having, select and order_by
//   - {eq|ne|lt|le|gt|ge: [left, right]}
//   - {and|or: [terms...]}, {not: expr}
//   - {is_null: expr}, {is_not_null: expr}
//   - {concat: [args...]}
//   - {cast: expr, to: "VARCHAR"}
//   - {add|sub|mul|div: [left, right]}
//
// The plan is checked against an embedded CUE definition, then compiled to
// a queryir tree: scan, joins, where filters, aggregate, having filters,
// projection, sort, skip and limit, in that order. Errors carry the CUE
// source position of the offending value.
package planspec
