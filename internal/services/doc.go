// Package services defines shared utilities consumed by the workflow stages and
// the external capability adapters.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, graph and stage names, attempt
//     numbers, and correlation identifiers for logging and tracing.
//   - The capability error taxonomy: sentinel markers plus the Wrap helper and
//     KindOf, which translate adapter failures into stable error kinds the
//     executor maps onto retryable and fatal outcomes.
//
// Use these helpers when wiring new adapters so classification and
// observability stay uniform across both pipelines.
package services
