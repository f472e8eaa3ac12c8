// Package catalog defines the contract between the table loader and the
// relational stores it reads from.
package catalog

import (
	"context"
	"net"
	"strconv"
)

// Catalog executes queries against a backing store on behalf of the loader.
// Implementations hold a single session, so SwitchSource affects every
// subsequent call on the same Catalog.
type Catalog interface {
	// SwitchSource selects the named database or schema. It reports false
	// when the source does not exist or cannot be selected.
	SwitchSource(ctx context.Context, name string) bool

	// TableExists reports whether the table exists in the current source.
	TableExists(ctx context.Context, name string) bool

	// ListTables returns every table in the current source, in the order
	// the store reports them.
	ListTables(ctx context.Context) ([]string, error)

	// SelectWithCondition returns every row of table that matches condition.
	// An empty condition returns the whole table.
	SelectWithCondition(ctx context.Context, table, condition string) (*Result, error)

	// Close releases the session.
	Close() error
}

// Pinger is implemented by catalogs that can probe their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connection holds the parameters used to open a Catalog.
type Connection struct {
	Driver   string            `yaml:"driver"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	User     string            `yaml:"user"`
	Password string            `yaml:"password"`
	Database string            `yaml:"database"`
	DSN      string            `yaml:"dsn"`
	Params   map[string]string `yaml:"params"`
}

// Address returns host:port, or just the host when no port is set.
func (c Connection) Address() string {
	if c.Port == 0 {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
