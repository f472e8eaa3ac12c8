package catalog

// Result is a tabular result set: ordered column names and rows aligned to
// them. Results handed out by the loader may be shared with the result
// cache and must not be modified.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewResult creates a result with the given columns and rows.
func NewResult(columns []string, rows ...[]any) *Result {
	if rows == nil {
		rows = [][]any{}
	}
	return &Result{Columns: columns, Rows: rows}
}

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Head returns a result holding at most n rows. The row slices are shared
// with r. A non-positive n returns r unchanged.
func (r *Result) Head(n int) *Result {
	if r == nil || n <= 0 || len(r.Rows) <= n {
		return r
	}
	return &Result{Columns: r.Columns, Rows: r.Rows[:n]}
}

// Column returns the values of the named column, or false if the result
// has no such column.
func (r *Result) Column(name string) ([]any, bool) {
	idx := -1
	for i, c := range r.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	values := make([]any, len(r.Rows))
	for i, row := range r.Rows {
		if idx < len(row) {
			values[i] = row[idx]
		}
	}
	return values, true
}
