// Package querypipe compiles relational plans into aggregation programs.
//
// A plan references the virtual tables produced by discovery. The compiler
// resolves every table and column against the schema graph and emits an
// ir.Program: the collection to aggregate, the ordered stages and the
// metadata of each output column.
//
// Child tables are read by flattening their parent documents:
//
//	orders_items            → {$unwind: {path: "$items", includeArrayIndex: "array_index_lvl_0"}}
//	orders_items_dims       → ... then {$match: {"items.dims": {$type: "object"}}}
//	orders_matrix_elements  → two $unwind stages over "$matrix"
//
// Joins between tables of one lineage on their synthesized keys emit no join
// stage; joins with any other table become a pipeline-form $lookup.
//
// Compilation is deterministic: equal plans over equal schemas produce equal
// programs, stage for stage.
package querypipe
