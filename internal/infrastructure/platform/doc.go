// Package platform holds the scraper adapters that turn e-commerce search
// results into ingestion.RawRecord batches. Adapters never validate; every
// record goes through the normalizer.
package platform
