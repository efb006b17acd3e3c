// Package models maps the domain types to GORM tables. Domain types carry no
// ORM tags; repositories read and write these models and convert with
// ToDomain and FromDomain.
//
//	catalog_entries     one row per (platform, platform_product_id)
//	price_observations  append-only price ledger
//	match_edges         derived cross-platform match graph
//	ingestion_runs      persisted run reports
package models
