//go:build sqlite_vec

package semantic

// Built with the sqlite_vec tag, similarity is computed in SQL through
// the sqlite-vec extension:
//
//	CGO_ENABLED=1 go build -tags sqlite_vec ./...
//
// Auto registers the extension with every sqlite3 connection opened in
// this process.

import (
	sqlitevec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

const vecExtensionAvailable = true

func init() {
	sqlitevec.Auto()
}
