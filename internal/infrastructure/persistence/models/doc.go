// Package models holds the GORM rows for the analytics tables created by
// migrations/000001. Domain types in internal/domain/analytics carry no
// ORM tags; each row converts with ToDomain and a FromDomain constructor.
package models
