package config

import "fmt"

// TraceStoreDriver identifies the trace store backend.
type TraceStoreDriver string

const (
	TraceStoreMemory   TraceStoreDriver = "memory"
	TraceStoreSQLite   TraceStoreDriver = "sqlite3"
	TraceStoreMySQL    TraceStoreDriver = "mysql"
	TraceStorePostgres TraceStoreDriver = "postgres"
)

// TraceStoreConfig configures the trace and job store.
type TraceStoreConfig struct {
	// Driver selects the backend (memory, sqlite3, mysql, postgres).
	Driver TraceStoreDriver `yaml:"driver,omitempty" json:"driver,omitempty" jsonschema:"enum=memory,enum=sqlite3,enum=mysql,enum=postgres,default=memory"`

	// DSN is the database connection string for SQL drivers.
	DSN string `yaml:"dsn,omitempty" json:"dsn,omitempty"`

	// MaxReadLimit bounds analyst and history reads.
	MaxReadLimit int `yaml:"max_read_limit,omitempty" json:"max_read_limit,omitempty" jsonschema:"minimum=1,default=500"`
}

// SetDefaults applies default values.
func (c *TraceStoreConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = TraceStoreMemory
	}
	if c.Driver == TraceStoreSQLite && c.DSN == "" {
		c.DSN = "file:paideia.db?_journal_mode=WAL"
	}
	if c.MaxReadLimit == 0 {
		c.MaxReadLimit = 500
	}
}

// Validate checks the trace store configuration.
func (c *TraceStoreConfig) Validate() error {
	switch c.Driver {
	case TraceStoreMemory, TraceStoreSQLite, TraceStoreMySQL, TraceStorePostgres:
	default:
		return fmt.Errorf("invalid trace store driver: %q", c.Driver)
	}
	if c.Driver != TraceStoreMemory && c.DSN == "" {
		return fmt.Errorf("dsn is required for driver %q", c.Driver)
	}
	return nil
}
