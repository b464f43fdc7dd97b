// Package exporter writes the cleaning pipeline's output artifacts: the
// processed dataset CSV, the cleaning summary CSV, and the per-country
// missingness report JSON. CSV files are BOM-prefixed so Excel opens them
// as UTF-8.
package exporter
