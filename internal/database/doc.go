// Package database provides connection pool management for PostgreSQL.
//
// The gateway's only database dependency is the optional delivery audit
// sink; everything the core components track lives in memory.
package database
