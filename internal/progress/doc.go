// Package progress models the job-progress payload served by the remote
// progress service: a current step plus a mapping of step index to status and
// message. The poll controller only inspects these values; it never mutates them.
package progress
