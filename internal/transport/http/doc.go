// Package http exposes the cleaning pipeline and its outputs over a
// chi-based REST API.
//
// Routes:
//
//	POST /api/operations            start a pipeline run
//	GET  /api/operations            list known operations, newest first
//	GET  /api/operations/{id}       operation status with per-step detail
//	GET  /api/data/summary          global KPI snapshot for the cleaned data
//	GET  /api/data/kpi              KPIs for one pollutant with filters
//	GET  /api/data/download/{filename}  download an output artifact
//	GET  /healthz                   liveness probe
//	GET  /metrics                   Prometheus metrics
//
// Errors are rendered as RFC 7807 problem documents with a trace_id
// extension for log correlation.
package http
