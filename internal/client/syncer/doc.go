// Package syncer moves rows between the local replica and the library
// server.
//
// The Puller fetches, per logical list, only rows changed since the list's
// watermark and merges them into the replica. The Persister pushes dirty
// rows, one cycle at a time, isolating every row and every entity level so
// that one failed send never blocks another. A BackoffRetrier re-runs the
// push later when a cycle ended with network failures. Engine ties these to
// the cache bus and is the surface the REPL drives.
package syncer
