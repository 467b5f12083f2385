package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/adapters/opcua"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/adapters/pdtsink"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
)

// Environment keys set by the deployment.
const (
	KeyDiscoveryURL        = "DISCOVERY_URL"
	KeyAgentURL            = "IFF_AGENT_URL"
	KeyAgentPort           = "IFF_AGENT_PORT"
	KeyUsername            = "USERNAME"
	KeyPassword            = "PASSWORD"
	KeyConfigPath          = "CONFIG_PATH"
	KeyServiceName         = "SERVICE_NAME"
	KeyStartupDelay        = "STARTUP_DELAY"
	KeyPollInterval        = "POLL_INTERVAL"
	KeyConnectTimeout      = "CONNECT_TIMEOUT"
	KeyReadTimeout         = "READ_TIMEOUT"
	KeyTransportBackoff    = "TRANSPORT_BACKOFF"
	KeyUnexpectedBackoff   = "UNEXPECTED_BACKOFF"
	KeyMaxReconnectBackoff = "MAX_RECONNECT_BACKOFF"
	KeySinkDialTimeout     = "SINK_DIAL_TIMEOUT"
	KeySinkWriteTimeout    = "SINK_WRITE_TIMEOUT"
	KeySecurityMode        = "SECURITY_MODE"
	KeySecurityPolicy      = "SECURITY_POLICY"
	KeyMetricsAddr         = "METRICS_ADDR"
	KeyLogLevel            = "LOG_LEVEL"
	KeyLogFormat           = "LOG_FORMAT"
)

const (
	DefaultConfigPath  = "../resources/config.yaml"
	DefaultServiceName = "fusiondataservice"
)

type Config struct {
	OPCUA       opcua.Config
	Sink        pdtsink.Config
	Poll        PollConfig
	Metrics     MetricsConfig
	Log         LogConfig
	PointsPath  string
	ServiceName string
	// StartupDelay gives the PDT agent time to come up before the first dial.
	StartupDelay time.Duration
}

type PollConfig struct {
	Interval            time.Duration
	TransportBackoff    time.Duration
	UnexpectedBackoff   time.Duration
	MaxReconnectBackoff time.Duration
}

type MetricsConfig struct {
	Addr string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetDefault(KeyConfigPath, DefaultConfigPath)
	v.SetDefault(KeyServiceName, DefaultServiceName)
	v.SetDefault(KeyMetricsAddr, ":9100")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "json")

	endpoint, err := ExtractEndpoint(v.GetString(KeyDiscoveryURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConfig, KeyDiscoveryURL, err)
	}

	port, err := parsePort(v.GetString(KeyAgentPort))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConfig, KeyAgentPort, err)
	}

	cfg := &Config{
		OPCUA: opcua.Config{
			Endpoint:       endpoint,
			Username:       v.GetString(KeyUsername),
			Password:       v.GetString(KeyPassword),
			SecurityMode:   v.GetString(KeySecurityMode),
			SecurityPolicy: v.GetString(KeySecurityPolicy),
		},
		Sink: pdtsink.Config{
			Host: strings.TrimSpace(v.GetString(KeyAgentURL)),
			Port: port,
		},
		Metrics:     MetricsConfig{Addr: v.GetString(KeyMetricsAddr)},
		Log:         LogConfig{Level: v.GetString(KeyLogLevel), Format: v.GetString(KeyLogFormat)},
		PointsPath:  v.GetString(KeyConfigPath),
		ServiceName: v.GetString(KeyServiceName),
	}
	durations := map[string]*time.Duration{
		KeyStartupDelay:        &cfg.StartupDelay,
		KeyPollInterval:        &cfg.Poll.Interval,
		KeyTransportBackoff:    &cfg.Poll.TransportBackoff,
		KeyUnexpectedBackoff:   &cfg.Poll.UnexpectedBackoff,
		KeyMaxReconnectBackoff: &cfg.Poll.MaxReconnectBackoff,
		KeyConnectTimeout:      &cfg.OPCUA.ConnectTimeout,
		KeyReadTimeout:         &cfg.OPCUA.ReadTimeout,
		KeySinkDialTimeout:     &cfg.Sink.DialTimeout,
		KeySinkWriteTimeout:    &cfg.Sink.WriteTimeout,
	}
	for key, dst := range durations {
		d, err := parseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrConfig, key, err)
		}
		*dst = d
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = time.Second
	}
	if c.Poll.TransportBackoff <= 0 {
		c.Poll.TransportBackoff = 5 * time.Second
	}
	if c.Poll.UnexpectedBackoff <= 0 {
		c.Poll.UnexpectedBackoff = 10 * time.Second
	}
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.PointsPath == "" {
		c.PointsPath = DefaultConfigPath
	}

	c.OPCUA.ApplyDefaults()
	c.Sink.ApplyDefaults()
}

func (c *Config) validate() error {
	if err := c.OPCUA.Validate(); err != nil {
		return fmt.Errorf("opcua config: %w", err)
	}
	if c.Sink.Host == "" {
		return fmt.Errorf("%s is required", KeyAgentURL)
	}
	if err := c.Sink.Validate(); err != nil {
		return fmt.Errorf("sink config: %w", err)
	}
	if c.StartupDelay < 0 {
		return fmt.Errorf("%s must not be negative", KeyStartupDelay)
	}
	return nil
}

var endpointPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9+.\-]*://\d{1,3}(?:\.\d{1,3}){3}:\d{1,5}`)

// ExtractEndpoint pulls a scheme://ip:port endpoint out of a discovery
// string. Strings without an IP endpoint but with a scheme are used as-is so
// host names keep working.
func ExtractEndpoint(discovery string) (string, error) {
	discovery = strings.TrimSpace(discovery)
	if discovery == "" {
		return "", fmt.Errorf("is required")
	}
	if m := endpointPattern.FindString(discovery); m != "" {
		return m, nil
	}
	if strings.Contains(discovery, "://") && !strings.ContainsAny(discovery, " \t") {
		return discovery, nil
	}
	return "", fmt.Errorf("no scheme://host:port endpoint in %q", discovery)
}

func parsePort(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("is required")
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", raw)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

// parseDuration accepts Go durations ("1500ms") or plain seconds ("5").
func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}
