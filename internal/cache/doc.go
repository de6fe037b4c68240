// Package cache persists inbox scan state as flat JSON files.
//
// Layout under the cache root:
//
//	thread_ids.json         last enumerated inbox thread IDs
//	threads/<threadID>.json one Entry per thread
//
// The store assumes a single process; it does not lock files.
package cache
