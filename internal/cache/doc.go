// Package cache defines the disk-backed store that holds byte-for-byte copies
// of fetched source images under CacheRoot. Every identifier owns a directory
// named after the SHA-256 of the identifier, so the layout is stable across
// restarts and safe for arbitrary identifier strings. Writes go through a temp
// file in the same directory followed by rename, so readers either see no file
// or a complete one.
package cache
