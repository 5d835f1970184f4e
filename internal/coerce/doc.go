// Package coerce holds the conversion rules shared by query compilation and
// result materialization.
//
// Getter conversions (To*) turn a stored ir.Value into a Go value of the
// requested representation. They never fail on lossy conversions: a
// numeric value that does not fit the target yields the target's zero.
// They fail only when no conversion exists, e.g. Binary to string.
//
// Expression typing (ConcatType, ArithType, CastType, ...) computes the SQL
// type and nullability of an expression from its operands.
package coerce
