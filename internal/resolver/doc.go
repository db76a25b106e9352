// Package resolver turns image identifiers into local files for the image
// server. A resolution is a cache hit when a complete copy of the source
// object already sits under CacheRoot; otherwise the identifier is mapped to a
// bucket and key, the object is fetched once (concurrent callers for the same
// identifier share that fetch), written atomically into the cache and its
// format is sniffed from the bytes.
package resolver
