// Package db provides embedded database migrations and seed data.
package db

import "embed"

// Migrations holds the versioned schema migrations in golang-migrate format.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// SeedProducts is the initial catalog loaded by storectl seed.
//
//go:embed seed/products.json
var SeedProducts []byte
