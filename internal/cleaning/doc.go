// Package cleaning implements the four-pass cleaning pipeline for the WHO
// ambient air quality dataset: city dropout by missingness threshold,
// per-city temporal interpolation, hierarchical regional fallback fill, and
// k-nearest-neighbor imputation. Each pass is deterministic and stateless:
// it consumes the previous pass's output and returns a change report.
package cleaning
