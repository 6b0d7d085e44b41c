/*
Package observability provides the metrics recorded by the transport client
and the job orchestrator.

Metrics are plain Prometheus collectors registered on a caller supplied
Registerer. A nil *Metrics is valid and records nothing, so components can
take one unconditionally.
*/
package observability
