// Package index implements the calibration, correlation and simulation
// engine behind the place-listing competitiveness scores.
//
// The external ranking oracle exposes three opaque indices per listed
// entity: index1 (keyword relevance), index2 (quality) and index3
// (composite competitiveness, which also determines the rank order). This
// package learns numeric models from historical (rank, index) observations
// so the indices can be approximated locally without an oracle round trip,
// measures which operator activities actually move the indices, and answers
// the forward ("what does this activity plan buy me") and inverse ("what
// movement does rank R require") prediction questions.
//
// # Models
//
//  1. Per keyword: index1 is an observed constant; index2 follows a linear
//     relation over rank (slope must be non-positive or the fit is
//     rejected).
//  2. Global: a six-term polynomial maps (index1, index2) to index3,
//     pooled across keywords. Keyword invariance is a working hypothesis
//     validated continuously by the fit-quality gate, not a guarantee.
//
// # Architecture
//
//   - types.go: observations, parameters, models, significance rows
//   - regression.go: OLS, Pearson correlation with exact p-values,
//     polynomial least squares
//   - calibration.go: gated fits with slope-sign and quality validation
//   - correlation.go: per-feature, per-lag significance analysis
//   - simulate.go: forward and inverse simulation
//   - scores.go: 0-100 display-score conversion
//
// Everything in this package is pure computation: no I/O, no clocks beyond
// explicit "now" arguments, no stored state. Persistence and orchestration
// live in internal/store and internal/services.
package index
