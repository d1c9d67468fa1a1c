// Package api hosts the HTTP servers of the three long-running roles and the
// middleware they share. Notable routes:
//   - GET /healthz and /readyz for probes, GET /metrics for Prometheus.
//   - Frontier: /v1/next (long poll), /v1/urls, /v1/stopwords, /v1/size.
//   - Replica: /v1/index, /v1/search, /v1/snapshot, /v1/sync and the other
//     index reads.
//   - Gateway: /v1/search, /v1/connections, /v1/statistics (plus the
//     websocket stream and webhook listeners), /v1/replicas, /v1/pause,
//     /v1/urls, /v1/stopwords.
//
// Failures are answered as {"error": msg} with the status chosen by
// apperr.HTTPStatusCode.
package api
