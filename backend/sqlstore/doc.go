// Package sqlstore implements backend.Backend on SQLite using the pure Go
// modernc.org/sqlite driver.
//
// Every index is a row of the indexes table carrying the manifest version;
// every split is a row of the splits table. A write is one transaction:
//
//	UPDATE indexes SET version = ?, ... WHERE index_id = ? AND version = ?
//
// followed by the replacement of the index's split rows. Zero affected rows
// means another writer committed first.
package sqlstore
