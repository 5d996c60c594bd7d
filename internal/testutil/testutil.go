// Package testutil provides shared helpers for chatvault tests.
//
//   - assert.go: UTF-8 and substring assertions
//   - encoding.go: legacy-charset byte samples
package testutil
