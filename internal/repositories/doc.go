// Package repositories implements SQLite persistence for the catalog, import history and credentials.
//
// Key Implementations:
//   - [CatalogRepository] : track/artist upserts keyed by Spotify URI, track-artist links, import summaries
//   - [CredentialRepository] : one encrypted token pair per owner, overwritten on every connect
//
// Upserts report [models.Inserted] or [models.Updated] from a per-row revision counter returned by the
// same statement that writes the row, so each upsert is atomic on its own.
//
// Import summaries are written twice: once at start ([models.ImportInProgress]) and once at a terminal status.
// [CatalogRepository.CompleteImport] refuses to touch a summary that is already terminal.
package repositories
