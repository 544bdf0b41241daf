// Package api exposes the QueryChain HTTP interface: synchronous answers,
// asynchronous answer tasks, answer history, health and Prometheus metrics.
package api
