// Package webhooks implements signed, best-effort webhook delivery.
//
// # Delivery protocol
//
// Each delivery is an HTTP POST to the subscriber's registered URL. The
// payload (message id, message body, issuance timestamp) is carried inside
// a short-lived HS256 JWT signed with the subscriber's secret:
//
//	POST <subscriber.url>
//	Authorization: Bearer <token>
//	Content-Type: application/json
//
//	{"token": "<token>"}
//
// The subscriber verifies the token with the secret issued to it at
// registration time. The token expiry bounds how long a captured
// credential stays replayable.
//
// # Fan-out semantics
//
// DeliverAll launches one delivery per subscriber concurrently (bounded by
// a semaphore), joins on all of them, and reports per-subscriber outcomes.
// It never fails as a whole: an unreachable subscriber costs nobody else
// their delivery, and there are no retries.
package webhooks
