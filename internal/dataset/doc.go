// Package dataset defines the in-memory representation of the WHO ambient
// air quality measurements and the readers that load it from CSV and Excel
// files. Missing measurements are represented as NaN so that cleaning passes
// can distinguish "not observed" from a genuine zero.
package dataset
