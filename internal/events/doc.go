// Package events carries poll-controller lifecycle events (activation, poll
// outcomes, retries, stops and cleanup notifications) to pluggable sinks.
package events
