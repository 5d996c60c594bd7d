//go:build !sqlite_vec

package semantic

// Without the sqlite_vec tag, similarity is computed in Go over all
// candidate vectors. Slower on large indexes but needs no extension.

const vecExtensionAvailable = false
