package storage

import "errors"

const DefaultMigrationsTable = "schema_migrations"

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)
