package progress

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecode marks a response body that could not be parsed as a progress
// envelope.
var ErrDecode = errors.New("decode progress envelope")

// Envelope is the JSON body returned by GET /api/progress/{subject}.
type Envelope struct {
	Success  bool      `json:"success"`
	Progress *Snapshot `json:"progress,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// Active reports whether the envelope carries a job in progress. A false
// result means the server has nothing to track for the subject.
func (e Envelope) Active() bool {
	return e.Success && e.Progress != nil
}

// Decode parses body into an Envelope. Malformed JSON and snapshots that fail
// validation are reported as ErrDecode.
func Decode(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if env.Progress != nil {
		if err := env.Progress.Validate(); err != nil {
			return Envelope{}, fmt.Errorf("%w: %w", ErrDecode, err)
		}
	}
	return env, nil
}
