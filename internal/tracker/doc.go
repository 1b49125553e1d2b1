// Package tracker implements the poll controller that follows a server-side
// job for one subject.
//
// A Controller polls the progress service immediately on Start and then on a
// fixed interval, forwards every snapshot to a Renderer, retries failures with
// capped exponential backoff, force-stops after a timeout ceiling, and tells
// the server to drop its tracking state whenever polling stops. Every path
// back to idle goes through one stop routine, so the cleanup notification
// fires exactly once per activation.
//
// Timer callbacks and late responses are tied to the activation that created
// them; once Stop runs they have no effect.
package tracker
