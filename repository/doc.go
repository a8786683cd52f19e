// Package repository provides a generic Bun repository for CRUD, pagination,
// upsert and transactional writes. Operations are bounded per call by a
// ContextBounder, normally the query timeout of a database.Handle.
package repository
