// Package conditions resolves per-table SQL filter fragments for a table
// set.
package conditions

import "sort"

// Global is the key whose fragment applies to every table without an
// explicit entry of its own.
const Global = "GLOBAL"

// Resolved maps table name to the fragment appended to its SELECT. A table
// absent from the map is read unfiltered.
type Resolved map[string]string

// For returns the fragment for table, or "" when it has none.
func (r Resolved) For(table string) string {
	return r[table]
}

// Resolve builds the per-table fragments for tables from raw. An explicit
// entry for a table wins over Global. Keys that are neither Global nor in
// tables are dropped and returned sorted. raw is not modified.
func Resolve(tables []string, raw map[string]string) (Resolved, []string) {
	known := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		known[t] = struct{}{}
	}

	var unknown []string
	for key := range raw {
		if key == Global {
			continue
		}
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	global, hasGlobal := raw[Global]
	resolved := make(Resolved, len(tables))
	for _, t := range tables {
		if cond, ok := raw[t]; ok {
			resolved[t] = cond
			continue
		}
		if hasGlobal {
			resolved[t] = global
		}
	}
	return resolved, unknown
}
