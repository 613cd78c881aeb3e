// Package models defines the entities songcrate persists.
//
//   - [Track], [Artist] : catalog rows, upserted by Spotify URI with a [LocalID] primary key
//   - [ImportSummary] : one row per import run, written at start and finalized once
//   - [Credential] : one encrypted token pair per owner
//
// [UpsertResult] is how repositories tell the importer whether a row was new.
package models
