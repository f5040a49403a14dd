// Package containers provides testcontainers-backed infrastructure for
// integration tests. Everything here is behind the "integration" build tag;
// unit tests never pull container images.
//
// Run the integration suite with:
//
//	go test -tags integration ./...
package containers
