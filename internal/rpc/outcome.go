package rpc

import "encoding/json"

// Kind classifies what happened to an upstream call. Every call maps to
// exactly one Kind; there is no error return alongside it.
type Kind uint8

const (
	// KindSuccess means the daemon answered 2xx with a JSON body.
	KindSuccess Kind = iota
	// KindUnavailable means the daemon could not be reached at all.
	KindUnavailable
	// KindTimeout means the daemon did not answer within the deadline.
	KindTimeout
	// KindProtocolError means the daemon answered an HTTP error without a
	// JSON-RPC error body, typically bad credentials.
	KindProtocolError
	// KindUpstreamError means the daemon rejected the request with a
	// JSON-RPC error of its own.
	KindUpstreamError
	// KindUnknown covers everything else, such as a 2xx non-JSON body.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindProtocolError:
		return "protocol_error"
	case KindUpstreamError:
		return "upstream_error"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one upstream call.
type Outcome struct {
	Kind Kind
	// Payload holds the verbatim upstream response body. Set for
	// KindSuccess only.
	Payload json.RawMessage
	// UpstreamMessage holds the daemon's own error text. Set for
	// KindUpstreamError only; it is logged, never sent to clients.
	UpstreamMessage string
}
