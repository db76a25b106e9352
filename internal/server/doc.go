// Package server hosts the Fiber HTTP service that exposes the resolver to
// out-of-process image servers. It attaches request IDs and panic recovery,
// mounts the resolve/resolvable endpoints under /-/ and serves Prometheus
// metrics. Handlers depend on resolver.ImageResolver only, so tests can inject
// fakes instead of a real object store.
package server
