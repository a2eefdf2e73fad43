package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-errors/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP  HTTP  `json:"http"`
	RPC   RPC   `json:"rpc"`
	Peers Peers `json:"peers"`
}

// RPC describes how to reach the upstream Divi daemon. Username and
// password may also come from the daemon's own config file or the legacy
// RPC_USER/RPC_PASS/RPC_PORT environment variables; see daemon.go.
type RPC struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     uint16 `json:"port"`
	// Timeout bounds each upstream call, in seconds.
	Timeout uint `json:"timeout"`
	// ConfFile overrides the platform-default divi.conf path.
	ConfFile string `json:"conf_file" yaml:"conf_file"`
}

type Peers struct {
	// CacheTTL is how long a computed peer listing stays servable, in seconds.
	CacheTTL uint `json:"cache_ttl" yaml:"cache_ttl"`
}

type HTTPListener struct {
	IPV4Host string `json:"ipv4_host" yaml:"ipv4_host"`
	IPV6Host string `json:"ipv6_host" yaml:"ipv6_host"`
	Port     uint16 `json:"port"`
}

type Tracing struct {
	Enabled      bool   `json:"enabled"`
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
}

type PProf struct {
	Enabled bool `json:"enabled"`
}

type Metrics struct {
	HTTPListener
	Enabled bool `json:"enabled"`
}

type RateLimit struct {
	Enabled           bool    `json:"enabled"`
	RequestsPerMinute float64 `json:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int     `json:"burst"`
}

type HTTP struct {
	HTTPListener
	Tracing
	PProf          PProf     `json:"pprof"`
	TrustedProxies []string  `json:"trusted_proxies" yaml:"trusted_proxies"`
	Metrics        Metrics   `json:"metrics"`
	CORSHosts      []string  `json:"cors_hosts" yaml:"cors_hosts"`
	RateLimit      RateLimit `json:"rate_limit" yaml:"rate_limit"`
}

//nolint:golint,gochecknoglobals
var (
	ConfigFileKey                  = "config"
	HTTPIPV4HostKey                = "http.ipv4_host"
	HTTPIPV6HostKey                = "http.ipv6_host"
	HTTPPortKey                    = "http.port"
	HTTPTracingEnabledKey          = "http.tracing.enabled"
	HTTPTracingOTLPEndKey          = "http.tracing.otlp_endpoint"
	HTTPPProfEnabledKey            = "http.pprof.enabled"
	HTTPTrustedProxiesKey          = "http.trusted_proxies"
	HTTPMetricsEnabledKey          = "http.metrics.enabled"
	HTTPMetricsIPV4HostKey         = "http.metrics.ipv4_host"
	HTTPMetricsIPV6HostKey         = "http.metrics.ipv6_host"
	HTTPMetricsPortKey             = "http.metrics.port"
	HTTPCORSHostsKey               = "http.cors_hosts"
	HTTPRateLimitEnabledKey        = "http.rate_limit.enabled"
	HTTPRateLimitRequestsPerMinKey = "http.rate_limit.requests_per_minute"
	HTTPRateLimitBurstKey          = "http.rate_limit.burst"
	RPCUsernameKey                 = "rpc.username"
	//nolint:golint,gosec
	RPCPasswordKey   = "rpc.password"
	RPCHostKey       = "rpc.host"
	RPCPortKey       = "rpc.port"
	RPCTimeoutKey    = "rpc.timeout"
	RPCConfFileKey   = "rpc.conf_file"
	PeersCacheTTLKey = "peers.cache_ttl"
)

const (
	DefaultConfigPath              = "config.yaml"
	DefaultHTTPIPV4Host            = "0.0.0.0"
	DefaultHTTPIPV6Host            = "::"
	DefaultHTTPPort                = 8080
	DefaultHTTPMetricsIPV4Host     = "127.0.0.1"
	DefaultHTTPMetricsIPV6Host     = "::1"
	DefaultHTTPMetricsPort         = 8081
	DefaultRateLimitRequestsPerMin = 600
	DefaultRateLimitBurst          = 30
	DefaultRPCHost                 = "localhost"
	DefaultRPCPort                 = 51473
	DefaultRPCTimeout              = 30
	// Five hours, matching the deployed gateway.
	DefaultPeersCacheTTL = 18000
)

func RegisterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP(ConfigFileKey, "c", DefaultConfigPath, "Config file path")
	cmd.Flags().String(HTTPIPV4HostKey, DefaultHTTPIPV4Host, "HTTP server IPv4 host")
	cmd.Flags().String(HTTPIPV6HostKey, DefaultHTTPIPV6Host, "HTTP server IPv6 host")
	cmd.Flags().Uint16(HTTPPortKey, DefaultHTTPPort, "HTTP server port")
	cmd.Flags().Bool(HTTPTracingEnabledKey, false, "Enable Open Telemetry tracing")
	cmd.Flags().String(HTTPTracingOTLPEndKey, "", "Open Telemetry endpoint")
	cmd.Flags().Bool(HTTPPProfEnabledKey, false, "Enable pprof")
	cmd.Flags().StringSlice(HTTPTrustedProxiesKey, []string{}, "Comma-separated list of trusted proxies")
	cmd.Flags().Bool(HTTPMetricsEnabledKey, false, "Enable metrics server")
	cmd.Flags().String(HTTPMetricsIPV4HostKey, DefaultHTTPMetricsIPV4Host, "Metrics server IPv4 host")
	cmd.Flags().String(HTTPMetricsIPV6HostKey, DefaultHTTPMetricsIPV6Host, "Metrics server IPv6 host")
	cmd.Flags().Uint16(HTTPMetricsPortKey, DefaultHTTPMetricsPort, "Metrics server port")
	cmd.Flags().StringSlice(HTTPCORSHostsKey, []string{}, "Comma-separated list of CORS hosts")
	cmd.Flags().Bool(HTTPRateLimitEnabledKey, false, "Enable per-IP rate limiting")
	cmd.Flags().Float64(HTTPRateLimitRequestsPerMinKey, DefaultRateLimitRequestsPerMin, "Rate limit in requests per minute per IP")
	cmd.Flags().Int(HTTPRateLimitBurstKey, DefaultRateLimitBurst, "Rate limit burst per IP")
	cmd.Flags().String(RPCUsernameKey, "", "Upstream RPC username")
	cmd.Flags().String(RPCPasswordKey, "", "Upstream RPC password")
	cmd.Flags().String(RPCHostKey, DefaultRPCHost, "Upstream RPC host")
	cmd.Flags().Uint16(RPCPortKey, 0, "Upstream RPC port")
	cmd.Flags().Uint(RPCTimeoutKey, DefaultRPCTimeout, "Upstream RPC timeout in seconds")
	cmd.Flags().String(RPCConfFileKey, "", "Path to the daemon config file holding rpcuser/rpcpassword/rpcport")
	cmd.Flags().Uint(PeersCacheTTLKey, DefaultPeersCacheTTL, "Peer listing cache TTL in seconds")
}

var (
	ErrRPCUsernameRequired  = errors.New("Upstream RPC username is required")
	ErrRPCPasswordRequired  = errors.New("Upstream RPC password is required")
	ErrRPCTimeoutRequired   = errors.New("Upstream RPC timeout must be nonzero")
	ErrPeersCacheTTLInvalid = errors.New("Peer cache TTL must be nonzero")
	ErrOTLPEndpointRequired = errors.New("OTLP endpoint is required when tracing is enabled")
)

func (c *Config) Validate() error {
	if c.RPC.Username == "" {
		return ErrRPCUsernameRequired
	}
	if c.RPC.Password == "" {
		return ErrRPCPasswordRequired
	}
	if c.RPC.Timeout == 0 {
		return ErrRPCTimeoutRequired
	}
	if c.Peers.CacheTTL == 0 {
		return ErrPeersCacheTTLInvalid
	}
	if c.HTTP.Tracing.Enabled && c.HTTP.Tracing.OTLPEndpoint == "" {
		return ErrOTLPEndpointRequired
	}

	return nil
}

func LoadConfig(cmd *cobra.Command) (*Config, error) {
	var config Config

	// Load flags from envs
	ctx, cancel := context.WithCancelCause(cmd.Context())
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if ctx.Err() != nil {
			return
		}
		optName := strings.ReplaceAll(strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_"), ".", "__")
		if val, ok := os.LookupEnv(optName); !f.Changed && ok {
			if err := f.Value.Set(val); err != nil {
				cancel(err)
			}
			f.Changed = true
		}
	})
	if ctx.Err() != nil {
		return &config, fmt.Errorf("failed to load env: %w", context.Cause(ctx))
	}

	configPath, err := cmd.Flags().GetString(ConfigFileKey)
	if err != nil {
		return &config, fmt.Errorf("failed to get config path: %w", err)
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return &config, fmt.Errorf("failed to read config: %w", err)
		} else if err == nil {
			if err := yaml.Unmarshal(data, &config); err != nil {
				return &config, fmt.Errorf("failed to unmarshal config: %w", err)
			}
		}
	}

	err = overrideFlags(&config, cmd)
	if err != nil {
		return &config, fmt.Errorf("failed to override flags: %w", err)
	}

	// Defaults
	if config.HTTP.IPV4Host == "" {
		config.HTTP.IPV4Host = DefaultHTTPIPV4Host
	}
	if config.HTTP.IPV6Host == "" {
		config.HTTP.IPV6Host = DefaultHTTPIPV6Host
	}
	if config.HTTP.Port == 0 {
		config.HTTP.Port = DefaultHTTPPort
	}
	if config.HTTP.Metrics.IPV4Host == "" {
		config.HTTP.Metrics.IPV4Host = DefaultHTTPMetricsIPV4Host
	}
	if config.HTTP.Metrics.IPV6Host == "" {
		config.HTTP.Metrics.IPV6Host = DefaultHTTPMetricsIPV6Host
	}
	if config.HTTP.Metrics.Port == 0 {
		config.HTTP.Metrics.Port = DefaultHTTPMetricsPort
	}
	if config.HTTP.RateLimit.RequestsPerMinute == 0 {
		config.HTTP.RateLimit.RequestsPerMinute = DefaultRateLimitRequestsPerMin
	}
	if config.HTTP.RateLimit.Burst == 0 {
		config.HTTP.RateLimit.Burst = DefaultRateLimitBurst
	}
	if config.RPC.Host == "" {
		config.RPC.Host = DefaultRPCHost
	}
	if config.RPC.Timeout == 0 {
		config.RPC.Timeout = DefaultRPCTimeout
	}
	if config.Peers.CacheTTL == 0 {
		config.Peers.CacheTTL = DefaultPeersCacheTTL
	}

	// The daemon config file and the legacy environment variables fill in
	// whatever RPC settings are still missing, including the port default.
	err = loadDaemonConfig(&config)
	if err != nil {
		return &config, fmt.Errorf("failed to load daemon config: %w", err)
	}

	return &config, nil
}

func overrideFlags(config *Config, cmd *cobra.Command) error {
	var err error
	if cmd.Flags().Changed(HTTPIPV4HostKey) {
		config.HTTP.IPV4Host, err = cmd.Flags().GetString(HTTPIPV4HostKey)
		if err != nil {
			return fmt.Errorf("failed to get HTTP IPv4 host: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPIPV6HostKey) {
		config.HTTP.IPV6Host, err = cmd.Flags().GetString(HTTPIPV6HostKey)
		if err != nil {
			return fmt.Errorf("failed to get HTTP IPv6 host: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPPortKey) {
		config.HTTP.Port, err = cmd.Flags().GetUint16(HTTPPortKey)
		if err != nil {
			return fmt.Errorf("failed to get HTTP port: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPPProfEnabledKey) {
		config.HTTP.PProf.Enabled, err = cmd.Flags().GetBool(HTTPPProfEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get pprof enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPTrustedProxiesKey) {
		config.HTTP.TrustedProxies, err = cmd.Flags().GetStringSlice(HTTPTrustedProxiesKey)
		if err != nil {
			return fmt.Errorf("failed to get trusted proxies: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPMetricsEnabledKey) {
		config.HTTP.Metrics.Enabled, err = cmd.Flags().GetBool(HTTPMetricsEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get metrics enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPMetricsIPV4HostKey) {
		config.HTTP.Metrics.IPV4Host, err = cmd.Flags().GetString(HTTPMetricsIPV4HostKey)
		if err != nil {
			return fmt.Errorf("failed to get metrics IPv4 host: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPMetricsIPV6HostKey) {
		config.HTTP.Metrics.IPV6Host, err = cmd.Flags().GetString(HTTPMetricsIPV6HostKey)
		if err != nil {
			return fmt.Errorf("failed to get metrics IPv6 host: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPMetricsPortKey) {
		config.HTTP.Metrics.Port, err = cmd.Flags().GetUint16(HTTPMetricsPortKey)
		if err != nil {
			return fmt.Errorf("failed to get metrics port: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPTracingEnabledKey) {
		config.HTTP.Tracing.Enabled, err = cmd.Flags().GetBool(HTTPTracingEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get tracing enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPTracingOTLPEndKey) {
		config.HTTP.Tracing.OTLPEndpoint, err = cmd.Flags().GetString(HTTPTracingOTLPEndKey)
		if err != nil {
			return fmt.Errorf("failed to get tracing OTLP endpoint: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPCORSHostsKey) {
		config.HTTP.CORSHosts, err = cmd.Flags().GetStringSlice(HTTPCORSHostsKey)
		if err != nil {
			return fmt.Errorf("failed to get CORS hosts: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPRateLimitEnabledKey) {
		config.HTTP.RateLimit.Enabled, err = cmd.Flags().GetBool(HTTPRateLimitEnabledKey)
		if err != nil {
			return fmt.Errorf("failed to get rate limit enabled: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPRateLimitRequestsPerMinKey) {
		config.HTTP.RateLimit.RequestsPerMinute, err = cmd.Flags().GetFloat64(HTTPRateLimitRequestsPerMinKey)
		if err != nil {
			return fmt.Errorf("failed to get rate limit requests per minute: %w", err)
		}
	}

	if cmd.Flags().Changed(HTTPRateLimitBurstKey) {
		config.HTTP.RateLimit.Burst, err = cmd.Flags().GetInt(HTTPRateLimitBurstKey)
		if err != nil {
			return fmt.Errorf("failed to get rate limit burst: %w", err)
		}
	}

	if cmd.Flags().Changed(RPCUsernameKey) {
		config.RPC.Username, err = cmd.Flags().GetString(RPCUsernameKey)
		if err != nil {
			return fmt.Errorf("failed to get RPC username: %w", err)
		}
	}

	if cmd.Flags().Changed(RPCPasswordKey) {
		config.RPC.Password, err = cmd.Flags().GetString(RPCPasswordKey)
		if err != nil {
			return fmt.Errorf("failed to get RPC password: %w", err)
		}
	}

	if cmd.Flags().Changed(RPCHostKey) {
		config.RPC.Host, err = cmd.Flags().GetString(RPCHostKey)
		if err != nil {
			return fmt.Errorf("failed to get RPC host: %w", err)
		}
	}

	if cmd.Flags().Changed(RPCPortKey) {
		config.RPC.Port, err = cmd.Flags().GetUint16(RPCPortKey)
		if err != nil {
			return fmt.Errorf("failed to get RPC port: %w", err)
		}
	}

	if cmd.Flags().Changed(RPCTimeoutKey) {
		config.RPC.Timeout, err = cmd.Flags().GetUint(RPCTimeoutKey)
		if err != nil {
			return fmt.Errorf("failed to get RPC timeout: %w", err)
		}
	}

	if cmd.Flags().Changed(RPCConfFileKey) {
		config.RPC.ConfFile, err = cmd.Flags().GetString(RPCConfFileKey)
		if err != nil {
			return fmt.Errorf("failed to get RPC conf file: %w", err)
		}
	}

	if cmd.Flags().Changed(PeersCacheTTLKey) {
		config.Peers.CacheTTL, err = cmd.Flags().GetUint(PeersCacheTTLKey)
		if err != nil {
			return fmt.Errorf("failed to get peers cache TTL: %w", err)
		}
	}

	return nil
}
