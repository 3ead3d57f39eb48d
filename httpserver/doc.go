// Package httpserver exposes the provenance backend over HTTP.
//
// The server wires the content-addressed store, key vault, trace chains,
// anchor publisher, and verifier behind a chi router with request logging,
// a Prometheus metrics listener, pprof (optional), and the standard
// livez/readyz/drain lifecycle endpoints.
//
// Callers are identified by the X-Principal-ID header set by the fronting
// gateway; this package performs no authentication of its own. Errors map
// onto the sentinel taxonomy: 404 not found, 409 conflict or inactive key,
// 403 forbidden, 422 invalid stage transition, 503 ledger or backend
// unavailable.
package httpserver
