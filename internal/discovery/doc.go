// Package discovery infers a relational schema from a sample of documents.
//
// One discovery run reads a sample of a collection through a ScanStrategy
// and builds a forest of virtual tables:
//
//   - the base table, named after the collection, keyed by _id
//   - one document table per subdocument field (<parent>_<field>), 1:1 with
//     its parent and keyed by the parent's primary key
//   - one array table per array field (<parent>_<field>), keyed by the
//     parent's primary key plus array_index_lvl_<n>; nested arrays spawn
//     <table>_elements
//
// Scalar fields become columns whose SQL type is the widening (ir.Widen) of
// every kind observed. Discovery never fails on document shape; the only
// errors are failures of the underlying document stream (*StreamError).
//
// The result is a pure function of the sampled documents and their order,
// so re-discovering an unchanged collection yields an Equal schema.
package discovery
