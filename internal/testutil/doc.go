// Package testutil provides shell sessions and fixtures for tests.
//
// # Sessions
//
// NewSession creates a shell core working in a temporary directory, with a
// minimal environment and a goroutine collecting every message the core
// sends:
//
//	s := testutil.NewSession(t)
//	rc, out := s.Stdout("echo hello")
//
// Output returns the stdout, stderr and errors collected since the last
// call. User messages are sent through s.User.
//
// # Fixtures
//
// rc files and scripts are embedded using go:embed:
//
//	fixtures/rc.toml
//	fixtures/rc.yaml
//	fixtures/invalid_rc.toml
//	fixtures/script.sh
//
// CopyFixture writes one to disk and LoadRC reads an rc fixture through
// config.Load.
package testutil
