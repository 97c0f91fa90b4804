//go:build integration

// Package integration provides end-to-end tests that query datasets held in
// real object stores.
//
// These tests require Docker. They start a registry:2 container for OCI
// artifacts and a MinIO container for S3-compatible storage using
// testcontainers. Set SKIP_DOCKER_TESTS=1 to skip them.
// Run with: go test -tags=integration ./integration/...
package integration
