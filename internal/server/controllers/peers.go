package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/USA-RedDragon/divi-gateway/internal/cache"
	"github.com/USA-RedDragon/divi-gateway/internal/envelope"
	"github.com/USA-RedDragon/divi-gateway/internal/metrics"
	"github.com/USA-RedDragon/divi-gateway/internal/peers"
	"github.com/USA-RedDragon/divi-gateway/internal/rpc"
	"github.com/gin-gonic/gin"
)

// upstreamError carries the outcome of a failed daemon call out of the
// cache compute so the handler can answer with the matching status.
type upstreamError struct {
	outcome rpc.Outcome
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("upstream call failed: %s", e.outcome.Kind)
}

// GETPeers serves the filtered peer listing. Building it costs two daemon
// calls plus a pass over every connected peer, so one computed envelope is
// shared across callers until the cache TTL lapses.
//
// The cache slot is not keyed by the ipv6 flag: whichever flag value the
// computing request carried decides the listing every caller sees until
// expiry. Known limitation, kept for parity with the deployed gateway.
func GETPeers(c *gin.Context) {
	peerCache, ok := c.MustGet("peerCache").(*cache.Single[envelope.Response])
	if !ok {
		slog.Error("Failed to get peer cache from context")
		internalError(c)
		return
	}
	rpcClient, ok := c.MustGet("rpcClient").(*rpc.Client)
	if !ok {
		slog.Error("Failed to get RPC client from context")
		internalError(c)
		return
	}
	m, ok := c.MustGet("metrics").(*metrics.Metrics)
	if !ok {
		slog.Error("Failed to get metrics from context")
		internalError(c)
		return
	}

	includeIPv6 := parseFlag(c.Query("ipv6"))

	response, hit, err := peerCache.GetOrCompute(time.Now(), func() (envelope.Response, error) {
		return computePeers(rpcClient, includeIPv6)
	})
	if err != nil {
		m.IncrementPeerCacheMisses()
		slog.Error("Failed to compute peer listing", "error", err)
		var upstream *upstreamError
		if errors.As(err, &upstream) {
			writeOutcome(c, upstream.outcome)
			return
		}
		internalError(c)
		return
	}

	if hit {
		m.IncrementPeerCacheHits()
	} else {
		m.IncrementPeerCacheMisses()
	}
	c.JSON(http.StatusOK, response)
}

// computePeers asks the daemon for the current height and the raw peer
// table, filters the records, and wraps the groups in a fresh envelope.
// It runs on a background context: an abandoned inbound request must not
// cancel a computation whose result would usefully fill the cache.
func computePeers(rpcClient *rpc.Client, includeIPv6 bool) (envelope.Response, error) {
	ctx := context.Background()

	outcome := rpcClient.Call(ctx, "getblockcount", nil)
	if outcome.Kind != rpc.KindSuccess {
		return envelope.Response{}, &upstreamError{outcome: outcome}
	}
	var height int64
	if err := envelope.DecodeResult(outcome.Payload, &height); err != nil {
		return envelope.Response{}, fmt.Errorf("failed to decode block count: %w", err)
	}

	outcome = rpcClient.Call(ctx, "getpeerinfo", nil)
	if outcome.Kind != rpc.KindSuccess {
		return envelope.Response{}, &upstreamError{outcome: outcome}
	}
	var records []peers.PeerRecord
	if err := envelope.DecodeResult(outcome.Payload, &records); err != nil {
		return envelope.Response{}, fmt.Errorf("failed to decode peer records: %w", err)
	}

	groups, err := peers.Filter(records, height, includeIPv6)
	if err != nil {
		return envelope.Response{}, fmt.Errorf("failed to filter peers: %w", err)
	}
	result, err := json.Marshal(groups)
	if err != nil {
		return envelope.Response{}, fmt.Errorf("failed to marshal peer groups: %w", err)
	}
	return envelope.Success(result), nil
}
