// Package db embeds the storefront schema and seed data.
package db

import _ "embed"

// Schema holds the idempotent DDL for users, catalog, coupons, orders and
// discounts. It is applied on every start.
//
//go:embed migrations/001_schema.sql
var Schema string
