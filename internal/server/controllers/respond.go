// Package controllers holds the gateway's HTTP handlers. Every handler
// answers the uniform result/error/timestamp envelope except GETPing.
package controllers

import (
	"log/slog"
	"net/http"

	"github.com/USA-RedDragon/divi-gateway/internal/envelope"
	"github.com/USA-RedDragon/divi-gateway/internal/rpc"
	"github.com/gin-gonic/gin"
)

// statusFor maps an outcome kind to the HTTP status the gateway answers
// with. Upstream rejections are the caller's fault (bad hash, unknown
// block), hence 400; HTTP-level failures from the daemon are almost
// always credentials, hence 401.
func statusFor(kind rpc.Kind) int {
	switch kind {
	case rpc.KindSuccess:
		return http.StatusOK
	case rpc.KindUnavailable:
		return http.StatusServiceUnavailable
	case rpc.KindTimeout:
		return http.StatusGatewayTimeout
	case rpc.KindProtocolError:
		return http.StatusUnauthorized
	case rpc.KindUpstreamError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeOutcome(c *gin.Context, outcome rpc.Outcome) {
	c.JSON(statusFor(outcome.Kind), envelope.Normalize(outcome))
}

// clientError rejects a request before any upstream call is made.
func clientError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, envelope.ClientError(message))
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, envelope.Normalize(rpc.Outcome{Kind: rpc.KindUnknown}))
}

// upstreamCall performs one daemon call with the request's context and
// answers with the normalized envelope.
func upstreamCall(c *gin.Context, method string, params []any) {
	rpcClient, ok := c.MustGet("rpcClient").(*rpc.Client)
	if !ok {
		slog.Error("Failed to get RPC client from context")
		internalError(c)
		return
	}
	writeOutcome(c, rpcClient.Call(c.Request.Context(), method, params))
}
