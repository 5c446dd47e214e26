// Package postgres provides PostgreSQL implementations of the store
// interfaces for the curation pipeline. It owns the schema migrations,
// maps driver errors onto store sentinels, and keeps every query a constant
// string selected by closed switches over stage and content kind.
package postgres
