// Package querysql renders query plans as SQL text.
//
// The rendering is informational: it shows the SELECT statement a plan
// stands for, next to the pipeline the plan compiles to. Statements use ?
// placeholders for every literal so they can be logged and compared without
// escaping concerns.
package querysql
