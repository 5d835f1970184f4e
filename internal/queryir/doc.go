// Package queryir defines the relational plan docsql compiles.
//
// A plan is a tree of Nodes over the virtual tables produced by discovery:
//
//	[plan file / SQL front end] → [queryir plan] → [querypipe] → aggregation program
//
// SEALED INTERFACES:
//
// Node and Expr are sealed interfaces using the marker method pattern. Only
// types in this package implement them, so compilers can switch
// exhaustively:
//
//	switch n := node.(type) {
//	case *Scan:
//	case *Filter:
//	case *Join:
//	...
//	}
//
// PLAN SHAPE:
//
// Plans follow the shape a SQL planner produces for a single SELECT:
//
//	Limit/Skip/Sort (any order)
//	  Project (Limit/Skip/Sort may also sit directly below it)
//	    Filter (HAVING, optional)
//	      Aggregate (optional)
//	        Filter* (WHERE)
//	          Join tree of Scans (inputs may carry their own Filters)
//
// Validate checks the structural rules; name resolution against a schema
// happens in querypipe.
package queryir
