// Package collections keeps named tables of search results and lets callers
// reshape them with a small pipeline language.
//
// A collection is an ordered list of columns and rows of string cells.
// Column types are inferred on every change and reported as dtypes.
// Transformations are written as stages separated by "|":
//
//	filter from contains "@example.com" | domain from as sender_domain | group sender_domain | head 10
//
// Every update, successful or not, is appended to the collection history.
// Storage is pluggable through Store; MemoryStore and SQLiteStore are
// provided.
package collections
