// Package memdb is an in-process document store.
//
// It holds collections of ir.Document values and evaluates the aggregation
// pipelines querypipe emits: $match (query operators and $expr), $project,
// $addFields, $unwind, $sort, $limit, $skip, $group, $lookup and $count.
// Expressions follow the store's semantics: field paths map over arrays,
// missing fields are distinct from null, and numeric results widen from
// int to long to double as needed.
//
// memdb backs the test suites and the CLI's --data mode, where a directory
// of JSON files stands in for a live server.
package memdb
