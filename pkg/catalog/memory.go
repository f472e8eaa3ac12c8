package catalog

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryCatalog is an in-process Catalog backed by fixed results. Results
// are keyed by table and condition; a table without a result registered for
// a condition falls back to its unfiltered result.
type MemoryCatalog struct {
	mu      sync.Mutex
	sources map[string]*memorySource
	current *memorySource

	selectErrs map[string]error
	listErr    error
	selects    int
	lists      int
}

type memorySource struct {
	tables  []string
	results map[string]map[string]*Result
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		sources:    make(map[string]*memorySource),
		selectErrs: make(map[string]error),
	}
}

// AddTable registers the unfiltered contents of table in source. Tables are
// listed in the order they are first added.
func (m *MemoryCatalog) AddTable(source, table string, result *Result) *MemoryCatalog {
	return m.AddFilteredResult(source, table, "", result)
}

// AddFilteredResult registers the rows returned for table under condition.
func (m *MemoryCatalog) AddFilteredResult(source, table, condition string, result *Result) *MemoryCatalog {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[source]
	if !ok {
		src = &memorySource{results: make(map[string]map[string]*Result)}
		m.sources[source] = src
	}
	if _, ok := src.results[table]; !ok {
		src.results[table] = make(map[string]*Result)
		src.tables = append(src.tables, table)
	}
	src.results[table][condition] = result
	return m
}

// FailSelect makes every select on table return err.
func (m *MemoryCatalog) FailSelect(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectErrs[table] = err
}

// FailList makes ListTables return err.
func (m *MemoryCatalog) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// SelectCalls returns how many times SelectWithCondition has been called.
func (m *MemoryCatalog) SelectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selects
}

// ListCalls returns how many times ListTables has been called.
func (m *MemoryCatalog) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

// SwitchSource selects a source previously populated with AddTable.
func (m *MemoryCatalog) SwitchSource(_ context.Context, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	src, ok := m.sources[name]
	if !ok {
		return false
	}
	m.current = src
	return true
}

// TableExists reports whether the current source holds table.
func (m *MemoryCatalog) TableExists(_ context.Context, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return false
	}
	_, ok := m.current.results[name]
	return ok
}

// ListTables returns the tables of the current source in insertion order.
func (m *MemoryCatalog) ListTables(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists++
	if m.listErr != nil {
		return nil, WrapDataSource("list tables", "", m.listErr)
	}
	if m.current == nil {
		return nil, &DataSourceError{Op: "list tables", Err: fmt.Errorf("no source selected")}
	}
	return slices.Clone(m.current.tables), nil
}

// SelectWithCondition returns the result registered for table and condition.
func (m *MemoryCatalog) SelectWithCondition(_ context.Context, table, condition string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.selects++
	if err, ok := m.selectErrs[table]; ok {
		return nil, WrapDataSource("select", table, err)
	}
	if m.current == nil {
		return nil, &DataSourceError{Op: "select", Table: table, Err: fmt.Errorf("no source selected")}
	}
	byCondition, ok := m.current.results[table]
	if !ok {
		return nil, &DataSourceError{Op: "select", Table: table, Err: fmt.Errorf("table does not exist")}
	}
	if result, ok := byCondition[condition]; ok {
		return result, nil
	}
	if result, ok := byCondition[""]; ok {
		return result, nil
	}
	return NewResult(nil), nil
}

// Close does nothing.
func (*MemoryCatalog) Close() error {
	return nil
}

// Verify interface compliance.
var _ Catalog = (*MemoryCatalog)(nil)
