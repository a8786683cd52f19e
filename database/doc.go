// Package database bootstraps the process database handle.
//
// LoadConfig validates DATABASE_URL at startup and fails with a
// *ConfigurationError when it is missing; there is no fallback URL. A
// Provider builds exactly one Handle, a lazily connecting database/sql pool
// wrapped by a Bun query builder, and hands it to whoever is given the
// provider. The manager, migrations and SQL seeding operate on that handle.
package database
