// Package contacts resolves stored identifiers to display names using the
// macOS AddressBook databases. Resolution is display-only enrichment:
// every failure path yields an empty name, never an error, so callers fall
// back to showing the raw identifier.
package contacts

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wesm/chatvault/internal/identity"
)

// Resolver looks up a display name for a normalized identifier.
// Implementations must return "" (not an error) when no name is known or
// the lookup is denied.
type Resolver interface {
	Resolve(id identity.Identifier) string
}

// None is a Resolver that never resolves. Used when contact resolution is
// disabled in config.
type None struct{}

func (None) Resolve(identity.Identifier) string { return "" }

// Static resolves from a fixed identifier-to-name map. Keys are canonical
// identifier strings. Useful for tests and for user-supplied overrides.
type Static map[string]string

func (s Static) Resolve(id identity.Identifier) string { return s[id.Canonical] }

// contact mirrors the name components stored per AddressBook record.
type contact struct {
	first        string
	last         string
	nickname     string
	organization string
}

// displayName formats a contact as "First Last", preferring
// first+last > first > last > organization.
func (c contact) displayName() string {
	switch {
	case c.first != "" && c.last != "":
		return c.first + " " + c.last
	case c.first != "":
		return c.first
	case c.last != "":
		return c.last
	default:
		return c.organization
	}
}

// AddressBook resolves names from the macOS Contacts databases. All
// entries are loaded once at construction; the per-query path is a map
// lookup keyed by canonical identifier.
type AddressBook struct {
	region  string
	byKey   map[string]string
	byTail7 map[string]string
}

// addressBookDir is the default location of the AddressBook databases.
func addressBookDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Application Support", "AddressBook")
}

// OpenAddressBook loads contacts from the AddressBook databases under dir
// (the default macOS location when dir is empty). Missing or unreadable
// databases are skipped; an AddressBook with no entries still resolves,
// it simply always returns "".
func OpenAddressBook(dir, region string) *AddressBook {
	if dir == "" {
		dir = addressBookDir()
	}

	ab := &AddressBook{
		region:  region,
		byKey:   make(map[string]string),
		byTail7: make(map[string]string),
	}

	for _, dbPath := range findDatabases(dir) {
		ab.loadDatabase(dbPath)
	}
	return ab
}

// findDatabases lists AddressBook database files, per-source databases
// first since those hold the synced contacts.
func findDatabases(dir string) []string {
	var dbs []string

	sources, err := os.ReadDir(filepath.Join(dir, "Sources"))
	if err == nil {
		for _, entry := range sources {
			if !entry.IsDir() {
				continue
			}
			p := filepath.Join(dir, "Sources", entry.Name(), "AddressBook-v22.abcddb")
			if _, err := os.Stat(p); err == nil {
				dbs = append(dbs, p)
			}
		}
	}

	main := filepath.Join(dir, "AddressBook-v22.abcddb")
	if _, err := os.Stat(main); err == nil {
		dbs = append(dbs, main)
	}
	return dbs
}

// loadDatabase reads phone and email records from one AddressBook
// database. Any error aborts loading of that database silently.
func (ab *AddressBook) loadDatabase(path string) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT COALESCE(r.ZFIRSTNAME, ''), COALESCE(r.ZLASTNAME, ''),
		       COALESCE(r.ZNICKNAME, ''), COALESCE(r.ZORGANIZATION, ''),
		       COALESCE(p.ZFULLNUMBER, ''), '' AS address
		FROM ZABCDRECORD r
		JOIN ZABCDPHONENUMBER p ON p.ZOWNER = r.Z_PK
		UNION ALL
		SELECT COALESCE(r.ZFIRSTNAME, ''), COALESCE(r.ZLASTNAME, ''),
		       COALESCE(r.ZNICKNAME, ''), COALESCE(r.ZORGANIZATION, ''),
		       '' AS number, COALESCE(e.ZADDRESS, '')
		FROM ZABCDRECORD r
		JOIN ZABCDEMAILADDRESS e ON e.ZOWNER = r.Z_PK
	`)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var c contact
		var number, address string
		if err := rows.Scan(&c.first, &c.last, &c.nickname, &c.organization, &number, &address); err != nil {
			continue
		}
		name := c.displayName()
		if name == "" {
			continue
		}
		if address != "" {
			ab.store(strings.ToLower(strings.TrimSpace(address)), "", name)
		}
		if number != "" {
			ab.storePhone(number, name)
		}
	}
}

func (ab *AddressBook) store(key, tail7, name string) {
	if key != "" {
		if _, exists := ab.byKey[key]; !exists {
			ab.byKey[key] = name
		}
	}
	if tail7 != "" {
		if _, exists := ab.byTail7[tail7]; !exists {
			ab.byTail7[tail7] = name
		}
	}
}

func (ab *AddressBook) storePhone(number, name string) {
	id, err := identity.Normalize(number, ab.region)
	key := ""
	if err == nil {
		key = id.Canonical
	}
	digits := digitsOnly(number)
	tail := ""
	if len(digits) >= 7 {
		tail = digits[len(digits)-7:]
	}
	ab.store(key, tail, name)
}

// Resolve returns the display name for an identifier, or "" when unknown.
func (ab *AddressBook) Resolve(id identity.Identifier) string {
	if name, ok := ab.byKey[id.Canonical]; ok {
		return name
	}
	if id.Kind == identity.KindPhone {
		digits := digitsOnly(id.Canonical)
		if len(digits) >= 7 {
			if name, ok := ab.byTail7[digits[len(digits)-7:]]; ok {
				return name
			}
		}
	}
	return ""
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
