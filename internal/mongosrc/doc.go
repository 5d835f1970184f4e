// Package mongosrc adapts a MongoDB deployment to the native contracts.
//
// Source opens a client and hands out Collections, which discovery samples
// through Find and $sample, and acts as the Executor that runs compiled
// programs with Aggregate. Documents cross the boundary as raw BSON and are
// converted to ir values by FromRaw; ToBSON converts the other way for
// pipelines and filters.
//
// ParseExtJSON reads MongoDB Extended JSON, the format of the data files
// the CLI loads into memdb.
package mongosrc
