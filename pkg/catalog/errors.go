package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrDataSource is matched by every error raised while querying a store.
	ErrDataSource = errors.New("data source error")

	// ErrConfiguration is matched by every error raised when a source
	// cannot be selected or a connection is misconfigured.
	ErrConfiguration = errors.New("configuration error")
)

// DataSourceError reports a failed catalog query or fetch.
type DataSourceError struct {
	Op    string
	Table string
	Err   error
}

func (e *DataSourceError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDataSource.
func (*DataSourceError) Is(target error) bool {
	return target == ErrDataSource
}

// ConfigurationError reports a source that cannot be selected or a
// connection that cannot be configured.
type ConfigurationError struct {
	Source string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Source == "" {
		return e.Reason
	}
	return fmt.Sprintf("source %q: %s", e.Source, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (*ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// WrapDataSource wraps err as a DataSourceError unless it already is one.
// A nil err returns nil.
func WrapDataSource(op, table string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDataSource) {
		return err
	}
	return &DataSourceError{Op: op, Table: table, Err: err}
}
