// Package docker handles the host-side Docker collaborator: decoding the
// per-line json-file log envelope, building the immutable container
// descriptor from the Docker API's container JSON, and tailing a
// container's log file into the pipeline's producer side.
package docker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ErrKind distinguishes the envelope decode failure modes named in spec §7.
type ErrKind string

const (
	ErrInvalidFormat ErrKind = "InvalidFormat"
	ErrMissingField  ErrKind = "MissingField"
)

// DecodeError reports why a line failed to decode as a Docker envelope.
type DecodeError struct {
	Kind ErrKind
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Envelope is the host-emitted per-line JSON wrapper around a container's
// stdout/stderr, per spec §3. It is transient: it lives for one parse cycle.
type Envelope struct {
	Log    string
	Stream string
	Time   string
}

// rawEnvelope mirrors the wire shape: {"log":..., "stream":..., "time":...}.
type rawEnvelope struct {
	Log    string `json:"log"`
	Stream string `json:"stream"`
	Time   string `json:"time"`
}

// DecodeEnvelope parses one line of container log output into an Envelope.
// `log` and `time` are mandatory; `stream` defaults to "stdout" when absent.
// A trailing newline in the log text is trimmed. The timestamp is validated
// as RFC3339 (Docker emits RFC3339Nano, which parses under the same layout
// family), but the original string is preserved verbatim on the Envelope so
// downstream re-parses see exactly what Docker produced.
func DecodeEnvelope(line []byte) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, &DecodeError{Kind: ErrInvalidFormat, Msg: err.Error()}
	}

	if raw.Log == "" {
		return nil, &DecodeError{Kind: ErrMissingField, Msg: "missing field: log"}
	}
	if raw.Time == "" {
		return nil, &DecodeError{Kind: ErrMissingField, Msg: "missing field: time"}
	}

	if _, err := time.Parse(time.RFC3339Nano, raw.Time); err != nil {
		return nil, &DecodeError{Kind: ErrInvalidFormat, Msg: fmt.Sprintf("invalid timestamp %q: %v", raw.Time, err)}
	}

	stream := raw.Stream
	if stream == "" {
		stream = "stdout"
	}

	return &Envelope{
		Log:    strings.TrimSuffix(raw.Log, "\n"),
		Stream: stream,
		Time:   raw.Time,
	}, nil
}
