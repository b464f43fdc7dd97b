// Package analytics computes dashboard KPIs over the cleaned dataset:
// annual median concentrations, the share of countries exceeding the WHO
// annual guideline, worst and best performing countries, and observed
// extremes, each per pollutant with optional year and WHO-region scoping.
package analytics
