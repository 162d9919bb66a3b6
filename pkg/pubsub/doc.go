// Package pubsub is the coordination core of the relay service. It composes
// the subscriber store, message store, message cache and webhook dispatcher
// into the subscribe / unsubscribe / publish / request-and-broadcast
// operations exposed over HTTP.
//
// Subscriber lifecycle: a URL is created active on first subscribe,
// deactivated (never deleted) on unsubscribe, and reactivated with a rotated
// secret on repeat subscribe. Broadcasts go to active subscribers only.
package pubsub
