// Package envelope normalizes upstream outcomes into the stable response
// shape the gateway has always answered with: a result, an error, and a
// timestamp.
package envelope

import (
	"encoding/json"
	"time"

	"github.com/USA-RedDragon/divi-gateway/internal/rpc"
)

// Client-facing failure messages. These are fixed per failure kind; raw
// upstream error text never reaches a client.
const (
	MessageUnavailable   = "Service Unavailable. Try again later."
	MessageTimeout       = "Request Timeout. Service took too long to respond. Try again later."
	MessageProtocolError = "Oops! There was an HTTP error. Check your request and try again."
	MessageUpstreamError = "Upstream node rejected the request. Check your request and try again."
	MessageUnknown       = "Oops! Looks like something broke. Either the universe just exploded, or you used the wrong API function. Try again, newb!"
)

type Error struct {
	Message string `json:"message"`
}

// Response is the body every API endpoint answers with. Result and Error
// are both always present in the serialized form; successes populate
// Result and failures populate Error.
type Response struct {
	Result       json.RawMessage `json:"result"`
	Error        *Error          `json:"error"`
	TimestampUTC string          `json:"timestamp_utc"`
}

// Normalize maps any Outcome to a Response. Successful payloads that are
// themselves envelope-shaped are unwrapped exactly one level, so callers
// see the daemon's result member rather than its JSON-RPC framing.
func Normalize(outcome rpc.Outcome) Response {
	response := Response{TimestampUTC: timestamp()}
	switch outcome.Kind {
	case rpc.KindSuccess:
		if result, ok := resultMember(outcome.Payload); ok {
			response.Result = result
		} else {
			response.Result = outcome.Payload
		}
	case rpc.KindUnavailable:
		response.Error = &Error{Message: MessageUnavailable}
	case rpc.KindTimeout:
		response.Error = &Error{Message: MessageTimeout}
	case rpc.KindProtocolError:
		response.Error = &Error{Message: MessageProtocolError}
	case rpc.KindUpstreamError:
		response.Error = &Error{Message: MessageUpstreamError}
	default:
		response.Error = &Error{Message: MessageUnknown}
	}
	return response
}

// Success wraps an already-built result payload in a fresh envelope.
func Success(result json.RawMessage) Response {
	return Response{Result: result, TimestampUTC: timestamp()}
}

// ClientError builds the envelope for requests rejected before any
// upstream call is made.
func ClientError(message string) Response {
	return Response{Error: &Error{Message: message}, TimestampUTC: timestamp()}
}

// IsEnvelopeShaped reports whether a payload is a JSON object exposing a
// result member. Member presence is what counts: {"result":null} is
// envelope-shaped even though the member is null.
func IsEnvelopeShaped(payload json.RawMessage) bool {
	_, ok := resultMember(payload)
	return ok
}

// DecodeResult unmarshals a success payload into out, looking through the
// daemon's JSON-RPC framing when present.
func DecodeResult(payload json.RawMessage, out any) error {
	if result, ok := resultMember(payload); ok {
		return json.Unmarshal(result, out)
	}
	return json.Unmarshal(payload, out)
}

func resultMember(payload json.RawMessage) (json.RawMessage, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, false
	}
	result, ok := probe["result"]
	return result, ok
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
