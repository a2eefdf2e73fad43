package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/USA-RedDragon/divi-gateway/internal/cache"
	"github.com/USA-RedDragon/divi-gateway/internal/config"
	"github.com/USA-RedDragon/divi-gateway/internal/envelope"
	"github.com/USA-RedDragon/divi-gateway/internal/metrics"
	"github.com/USA-RedDragon/divi-gateway/internal/peers"
	"github.com/USA-RedDragon/divi-gateway/internal/rpc"
	"github.com/gin-gonic/gin"
)

// Prometheus collectors may only be registered once per process.
//
//nolint:golint,gochecknoglobals
var testMetrics = metrics.NewMetrics()

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type rpcCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeDaemon answers JSON-RPC requests from a method-to-body table and
// records every call. Methods missing from the table answer the daemon's
// method-not-found error.
type fakeDaemon struct {
	server  *httptest.Server
	mu      sync.Mutex
	calls   []rpcCall
	results map[string]string
}

func newFakeDaemon(t *testing.T, results map[string]string) *fakeDaemon {
	t.Helper()
	fake := &fakeDaemon{results: results}
	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			t.Errorf("unexpected error: %v", err)
			return
		}
		fake.mu.Lock()
		fake.calls = append(fake.calls, call)
		body, ok := fake.results[call.Method]
		fake.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"result":null,"error":{"code":-32601,"message":"Method not found"},"id":1}`))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeDaemon) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDaemon) call(i int) rpcCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

func (f *fakeDaemon) setResult(method, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[method] = body
}

func newTestEngine(t *testing.T, upstream string, ttl time.Duration) *gin.Engine {
	t.Helper()
	return newTestEngineWithConfig(t, upstream, ttl, &config.Config{})
}

func newTestEngineWithConfig(t *testing.T, upstream string, ttl time.Duration, conf *config.Config) *gin.Engine {
	t.Helper()
	parsed, err := url.Parse(upstream)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	port, err := strconv.ParseUint(parsed.Port(), 10, 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rpcClient := rpc.NewClient(config.RPC{
		Username: "divirpc",
		Password: "changeme",
		Host:     parsed.Hostname(),
		Port:     uint16(port),
		Timeout:  1,
	}, testMetrics)

	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	peerCache := cache.NewSingle[envelope.Response](ttl)
	applyMiddleware(r, conf, "api", rpcClient, peerCache, testMetrics)
	applyRoutes(r)
	return r
}

func doRequest(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, body []byte) envelope.Response {
	t.Helper()
	var response envelope.Response
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return response
}

func TestBlockCount(t *testing.T) {
	t.Parallel()
	daemon := newFakeDaemon(t, map[string]string{
		"getblockcount": `{"result":842001,"error":null,"id":1}`,
	})
	r := newTestEngine(t, daemon.server.URL, time.Minute)

	w := doRequest(r, http.MethodGet, "/blockcount")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	response := decodeEnvelope(t, w.Body.Bytes())
	if string(response.Result) != "842001" {
		t.Errorf("unexpected result: %s", response.Result)
	}
	if response.Error != nil {
		t.Errorf("unexpected error: %v", response.Error)
	}
	if _, err := time.Parse(time.RFC3339Nano, response.TimestampUTC); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidationBeforeUpstream(t *testing.T) {
	t.Parallel()
	daemon := newFakeDaemon(t, map[string]string{})
	r := newTestEngine(t, daemon.server.URL, time.Minute)

	cases := []struct {
		method  string
		target  string
		message string
	}{
		{http.MethodGet, "/block/nothex", "Invalid block hash"},
		{http.MethodGet, "/block/" + strings.Repeat("a", 63), "Invalid block hash"},
		{http.MethodGet, "/blockhash/-1", "Invalid block height"},
		{http.MethodGet, "/blockhash/ten", "Invalid block height"},
		{http.MethodGet, "/tx/" + strings.Repeat("g", 64), "Invalid transaction id"},
		{http.MethodGet, "/decode-raw-tx/abc", "Invalid transaction hex"},
		{http.MethodPost, "/sendrawtransaction?hexstring=zz", "Invalid hexstring provided"},
		{http.MethodPost, "/sendrawtransaction", "Invalid hexstring provided"},
		{http.MethodGet, "/getlottery?blockheight=bogus", "Invalid block height"},
	}
	for _, testCase := range cases {
		w := doRequest(r, testCase.method, testCase.target)
		if w.Code != http.StatusBadRequest {
			t.Errorf("unexpected status for %s: %d", testCase.target, w.Code)
		}
		response := decodeEnvelope(t, w.Body.Bytes())
		if response.Error == nil || response.Error.Message != testCase.message {
			t.Errorf("unexpected error for %s: %v", testCase.target, response.Error)
		}
	}
	if daemon.callCount() != 0 {
		t.Errorf("unexpected upstream calls: %d", daemon.callCount())
	}
}

func TestUpstreamUnavailable(t *testing.T) {
	t.Parallel()
	daemon := newFakeDaemon(t, map[string]string{})
	serverURL := daemon.server.URL
	daemon.server.Close()
	r := newTestEngine(t, serverURL, time.Minute)

	w := doRequest(r, http.MethodGet, "/info")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	response := decodeEnvelope(t, w.Body.Bytes())
	if response.Error == nil || response.Error.Message != envelope.MessageUnavailable {
		t.Errorf("unexpected error: %v", response.Error)
	}
}

func TestUpstreamTimeout(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1500 * time.Millisecond)
		_, _ = w.Write([]byte(`{"result":1,"error":null,"id":1}`))
	}))
	defer ts.Close()
	r := newTestEngine(t, ts.URL, time.Minute)

	w := doRequest(r, http.MethodGet, "/blockcount")
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	response := decodeEnvelope(t, w.Body.Bytes())
	if response.Error == nil || response.Error.Message != envelope.MessageTimeout {
		t.Errorf("unexpected error: %v", response.Error)
	}
}

func TestUpstreamError(t *testing.T) {
	t.Parallel()
	txid := strings.Repeat("a", 64)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"result":null,"error":{"code":-5,"message":"No information available about transaction"},"id":1}`))
	}))
	defer ts.Close()
	r := newTestEngine(t, ts.URL, time.Minute)

	w := doRequest(r, http.MethodGet, "/tx/"+txid)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	response := decodeEnvelope(t, w.Body.Bytes())
	if response.Error == nil || response.Error.Message != envelope.MessageUpstreamError {
		t.Errorf("unexpected error: %v", response.Error)
	}
	// The daemon's own wording stays in the logs, never in the body.
	if strings.Contains(w.Body.String(), "No information available") {
		t.Errorf("upstream message leaked: %s", w.Body.String())
	}
}

func TestProtocolError(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("Unauthorized"))
	}))
	defer ts.Close()
	r := newTestEngine(t, ts.URL, time.Minute)

	w := doRequest(r, http.MethodGet, "/info")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	response := decodeEnvelope(t, w.Body.Bytes())
	if response.Error == nil || response.Error.Message != envelope.MessageProtocolError {
		t.Errorf("unexpected error: %v", response.Error)
	}
}

func TestPing(t *testing.T) {
	t.Parallel()
	daemon := newFakeDaemon(t, map[string]string{})
	r := newTestEngine(t, daemon.server.URL, time.Minute)

	w := doRequest(r, http.MethodGet, "/ping")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["message"] != "pong" {
		t.Errorf("unexpected body: %v", body)
	}
	if _, ok := body["timestamp_utc"]; ok {
		t.Error("ping should answer without the envelope")
	}
	if daemon.callCount() != 0 {
		t.Errorf("unexpected upstream calls: %d", daemon.callCount())
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	daemon := newFakeDaemon(t, map[string]string{})
	r := newTestEngine(t, daemon.server.URL, time.Minute)

	w := doRequest(r, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	daemon := newFakeDaemon(t, map[string]string{})
	r := newTestEngine(t, daemon.server.URL, time.Minute)

	w := doRequest(r, http.MethodGet, "/does-not-exist")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if daemon.callCount() != 0 {
		t.Errorf("unexpected upstream calls: %d", daemon.callCount())
	}
}

func TestParamsForwarding(t *testing.T) {
	t.Parallel()
	txid := strings.Repeat("ab", 32)
	address := "D6vA4k1wjYZTyx2BPBJYYt1HyZVMCrNAbJ"
	daemon := newFakeDaemon(t, map[string]string{
		"getrawtransaction":      `{"result":{},"error":null,"id":1}`,
		"getblock":               `{"result":{},"error":null,"id":1}`,
		"sendrawtransaction":     `{"result":"` + txid + `","error":null,"id":1}`,
		"getaddressbalance":      `{"result":{"balance":1},"error":null,"id":1}`,
		"getaddressutxos":        `{"result":[],"error":null,"id":1}`,
		"getlotteryblockwinners": `{"result":[],"error":null,"id":1}`,
	})
	r := newTestEngine(t, daemon.server.URL, time.Minute)

	cases := []struct {
		method string
		target string
		rpc    string
		params string
	}{
		{http.MethodGet, "/tx/" + txid, "getrawtransaction", `["` + txid + `",1]`},
		{http.MethodGet, "/block/" + txid, "getblock", `["` + txid + `",true]`},
		{http.MethodPost, "/sendrawtransaction?hexstring=deadbeef", "sendrawtransaction", `["deadbeef",false]`},
		{http.MethodPost, "/sendrawtransaction?hexstring=deadbeef&allowhighfees=true", "sendrawtransaction", `["deadbeef",true]`},
		{http.MethodGet, "/getaddressbalance/" + address + "/false", "getaddressbalance", `[{"addresses":["` + address + `"]},false]`},
		{http.MethodGet, "/getaddressutxos/" + address + "/TRUE", "getaddressutxos", `[{"addresses":["` + address + `"]},true]`},
		{http.MethodGet, "/getlottery", "getlotteryblockwinners", `[]`},
		{http.MethodGet, "/getlottery?blockheight=250000", "getlotteryblockwinners", `[250000]`},
	}
	for _, testCase := range cases {
		before := daemon.callCount()
		w := doRequest(r, testCase.method, testCase.target)
		if w.Code != http.StatusOK {
			t.Fatalf("unexpected status for %s: %d", testCase.target, w.Code)
		}
		if daemon.callCount() != before+1 {
			t.Fatalf("unexpected upstream calls: %d", daemon.callCount())
		}
		call := daemon.call(before)
		if call.Method != testCase.rpc {
			t.Errorf("unexpected method for %s: %s", testCase.target, call.Method)
		}
		raw, err := json.Marshal(call.Params)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(raw) != testCase.params {
			t.Errorf("unexpected params for %s: %s", testCase.target, raw)
		}
	}
}

func TestPeers(t *testing.T) {
	t.Parallel()
	daemon := newFakeDaemon(t, map[string]string{
		"getblockcount": `{"result":100000,"error":null,"id":1}`,
		"getpeerinfo": `{"result":[` +
			`{"addr":"1.2.3.4:51472","subver":"DIVI Core: 3.0.5.0","startingheight":99950},` +
			`{"addr":"5.6.7.8:51472","subver":"DIVI Core: 3.0.5.0","startingheight":98000},` +
			`{"addr":"9.9.9.9:51472","subver":"DIVI Core: 2.0.0.0","startingheight":99999},` +
			`{"addr":"[2001:db8::1]:51472","subver":"DIVI Core: 3.0.5.0","startingheight":99999}` +
			`],"error":null,"id":1}`,
	})
	r := newTestEngine(t, daemon.server.URL, time.Minute)

	w := doRequest(r, http.MethodGet, "/peers")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	response := decodeEnvelope(t, w.Body.Bytes())
	var groups []peers.Group
	if err := json.Unmarshal(response.Result, &groups); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []peers.Group{
		{Core: "DIVI Core: 3.0.5.0", Peers: []peers.Peer{{IP: "1.2.3.4", Port: "51472"}}},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("unexpected groups: %+v", groups)
	}
	if daemon.callCount() != 2 {
		t.Fatalf("unexpected upstream calls: %d", daemon.callCount())
	}

	// Served from cache: identical body with the frozen timestamp, no
	// further daemon calls. The second caller's ipv6 flag has no effect
	// until the entry expires.
	again := doRequest(r, http.MethodGet, "/peers?ipv6=true")
	if again.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", again.Code)
	}
	if again.Body.String() != w.Body.String() {
		t.Errorf("cached body changed: %s != %s", again.Body.String(), w.Body.String())
	}
	if daemon.callCount() != 2 {
		t.Errorf("unexpected upstream calls: %d", daemon.callCount())
	}
}

func TestPeersIPv6(t *testing.T) {
	t.Parallel()
	daemon := newFakeDaemon(t, map[string]string{
		"getblockcount": `{"result":100000,"error":null,"id":1}`,
		"getpeerinfo": `{"result":[` +
			`{"addr":"1.2.3.4:51472","subver":"DIVI Core: 3.0.5.0","startingheight":99950},` +
			`{"addr":"[2001:db8::1]:51472","subver":"DIVI Core: 3.0.5.0","startingheight":99999}` +
			`],"error":null,"id":1}`,
	})
	r := newTestEngine(t, daemon.server.URL, time.Minute)

	w := doRequest(r, http.MethodGet, "/peers?ipv6=true")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	response := decodeEnvelope(t, w.Body.Bytes())
	var groups []peers.Group
	if err := json.Unmarshal(response.Result, &groups); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []peers.Group{
		{Core: "DIVI Core: 3.0.5.0", Peers: []peers.Peer{
			{IP: "1.2.3.4", Port: "51472"},
			{IP: "2001:db8::1", Port: "51472"},
		}},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("unexpected groups: %+v", groups)
	}
}

func TestPeersExpiry(t *testing.T) {
	t.Parallel()
	daemon := newFakeDaemon(t, map[string]string{
		"getblockcount": `{"result":100000,"error":null,"id":1}`,
		"getpeerinfo":   `{"result":[],"error":null,"id":1}`,
	})
	r := newTestEngine(t, daemon.server.URL, 50*time.Millisecond)

	w := doRequest(r, http.MethodGet, "/peers")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if daemon.callCount() != 2 {
		t.Fatalf("unexpected upstream calls: %d", daemon.callCount())
	}

	time.Sleep(60 * time.Millisecond)

	w = doRequest(r, http.MethodGet, "/peers")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	if daemon.callCount() != 4 {
		t.Errorf("unexpected upstream calls: %d", daemon.callCount())
	}
}

func TestPeersFailureNotCached(t *testing.T) {
	t.Parallel()
	// getblockcount missing from the table answers an RPC error.
	daemon := newFakeDaemon(t, map[string]string{})
	r := newTestEngine(t, daemon.server.URL, time.Minute)

	w := doRequest(r, http.MethodGet, "/peers")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	response := decodeEnvelope(t, w.Body.Bytes())
	if response.Error == nil || response.Error.Message != envelope.MessageUpstreamError {
		t.Errorf("unexpected error: %v", response.Error)
	}

	// Once the daemon recovers, the next request computes a fresh listing
	// rather than replaying the failure.
	daemon.setResult("getblockcount", `{"result":100000,"error":null,"id":1}`)
	daemon.setResult("getpeerinfo", `{"result":[],"error":null,"id":1}`)
	w = doRequest(r, http.MethodGet, "/peers")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	response = decodeEnvelope(t, w.Body.Bytes())
	if string(response.Result) != "[]" {
		t.Errorf("unexpected result: %s", response.Result)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	daemon := newFakeDaemon(t, map[string]string{})
	conf := &config.Config{}
	conf.HTTP.RateLimit = config.RateLimit{Enabled: true, RequestsPerMinute: 60, Burst: 2}
	r := newTestEngineWithConfig(t, daemon.server.URL, time.Minute, conf)

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		w := doRequest(r, http.MethodGet, "/ping")
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			response := decodeEnvelope(t, w.Body.Bytes())
			if response.Error == nil || response.Error.Message != "Too many requests. Try again later." {
				t.Errorf("unexpected error: %v", response.Error)
			}
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("unexpected codes: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests || codes[3] != http.StatusTooManyRequests {
		t.Errorf("unexpected codes: %v", codes)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	daemon := newFakeDaemon(t, map[string]string{})
	r := newTestEngine(t, daemon.server.URL, time.Minute)

	w := doRequest(r, http.MethodGet, "/ping")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	r.ServeHTTP(recorder, req)
	if got := recorder.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("unexpected X-Request-ID: %s", got)
	}
}

func TestRouterTrailingSlash(t *testing.T) {
	t.Parallel()
	daemon := newFakeDaemon(t, map[string]string{})
	router := &Router{Engine: newTestEngine(t, daemon.server.URL, time.Minute)}

	w := doRequest(router, http.MethodGet, "/ping/")
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body["message"] != "pong" {
		t.Errorf("unexpected body: %v", body)
	}
}
