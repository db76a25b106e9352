// Package identifier translates the opaque image identifiers handed over by
// the image server into object-store locations. An identifier looks like
// <placeholder-or-bucket>/<path>/<to>/<object>; the first segment is looked up
// in the bucket map and either replaced by a configured bucket plus key prefix
// or used verbatim as the bucket name.
package identifier
