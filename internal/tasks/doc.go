// Package tasks runs playlist imports with real-time progress reporting.
//
// # Import
//
// [Importer.Import] parses a playlist reference ([ParsePlaylistRef]), resolves the owner's access token and
// hands off to [Importer.Run], which:
//
//  1. records an in-progress import through the [CatalogStore]
//  2. fetches pages of 100 in order, each through a [retry.Retrier]
//  3. upserts every track, its artists and the track-artist links
//  4. commits the summary as completed, or as failed with the counts so far when a page fetch gives up
//
// The playlist size reported on the first page decides when paging stops. Tallies that disagree with it are
// logged and kept as observed.
//
// Only the page fetch path is fatal. Unavailable tracks and failed track, artist or link upserts increment
// the summary's failed counter and the run moves on.
//
// # Progress Reporting
//
// Operations accept an optional channel of [ProgressUpdate]. Updates use select with default to prevent
// blocking, so a slow reader drops intermediate updates.
package tasks
