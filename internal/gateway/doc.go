// Package gateway ties the inbound pipeline together: deduplication,
// per-conversation serialization, assistant calls, command dispatch and
// outbound delivery. It also exposes the HTTP webhook channel connectors
// post inbound messages to.
package gateway
