// Package sqlstore implements the storage interfaces on SQL databases through gorm.
//
// SQLite stores embeddings as text and reports no vector capability, so
// searches fall back to keyword matching. PostgreSQL stores embeddings in a
// pgvector column and ranks with the cosine distance operator when the vector
// extension can be installed; otherwise it behaves like SQLite.
//
// Usage:
//
//	repos, err := sqlstore.Open(ctx, sqlstore.DialectPostgres, dsn)
//	if err != nil {
//	    return err
//	}
//	defer repos.Close()
package sqlstore
