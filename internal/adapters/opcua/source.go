package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
	"github.com/IndustryFusion/fusionopcuadataservice/internal/ports"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
)

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	Endpoint        string
	Username        string
	Password        string
	SecurityMode    string
	SecurityPolicy  string
	ApplicationName string
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
}

// ApplyDefaults fills unset fields. Security defaults to None/None.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.SecurityMode) == "" {
		c.SecurityMode = securityNone
	}
	if strings.TrimSpace(c.SecurityPolicy) == "" {
		c.SecurityPolicy = securityNone
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "IFF OPC UA Data Service"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
}

// Validate checks the endpoint, credentials and that mode and policy name a
// combination the server can negotiate.
func (c *Config) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.Password != "" && c.Username == "" {
		errs = append(errs, errors.New("password set without username"))
	}

	mode, modeErr := resolveSecurityMode(c.SecurityMode)
	policy, policyErr := resolveSecurityPolicy(c.SecurityPolicy)
	errs = append(errs, modeErr, policyErr)
	if modeErr == nil && policyErr == nil && (mode == securityNone) != (policy == ua.SecurityPolicyURINone) {
		errs = append(errs, fmt.Errorf("security mode %s cannot be used with policy %s", mode, c.SecurityPolicy))
	}
	return errors.Join(errs...)
}

// client is the subset of *opcua.Client a session needs.
type client interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error)
	Close(ctx context.Context) error
}

type dialFunc func(endpoint string, opts ...opcua.Option) (client, error)

func newOPCUAClient(endpoint string, opts ...opcua.Option) (client, error) {
	return opcua.NewClient(endpoint, opts...)
}

// Source opens OPC UA sessions on demand. It keeps no session of its own; the
// poll loop owns whatever Connect returns.
type Source struct {
	cfg  Config
	dial dialFunc
}

func NewSource(cfg Config) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Source{cfg: cfg, dial: newOPCUAClient}, nil
}

func (s *Source) Endpoint() string { return s.cfg.Endpoint }

// Connect dials the endpoint and activates a session, authenticating when a
// username is configured. The handshake is bounded by ConnectTimeout.
func (s *Source) Connect(ctx context.Context) (ports.SourceSession, error) {
	c, err := s.dial(s.cfg.Endpoint, s.buildClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: opcua new client: %v", domain.ErrSourceConnect, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := c.Connect(connectCtx); err != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
		_ = c.Close(closeCtx)
		closeCancel()
		return nil, fmt.Errorf("%w: opcua connect %s: %w", domain.ErrSourceConnect, s.cfg.Endpoint, err)
	}

	return &session{client: c, readTimeout: s.cfg.ReadTimeout}, nil
}

func (s *Source) buildClientOptions() []opcua.Option {
	// both were checked by Validate in NewSource
	mode, _ := resolveSecurityMode(s.cfg.SecurityMode)
	policy, _ := resolveSecurityPolicy(s.cfg.SecurityPolicy)

	opts := []opcua.Option{
		opcua.SecurityModeString(mode),
		opcua.SecurityPolicy(policy),
		opcua.ApplicationName(s.cfg.ApplicationName),
		opcua.DialTimeout(s.cfg.ConnectTimeout),
		opcua.RequestTimeout(s.cfg.ReadTimeout),
		// The poll loop owns reconnects; a client that silently heals would
		// hide session loss from it.
		opcua.AutoReconnect(false),
	}

	if s.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(s.cfg.Username, s.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}

	return opts
}

type session struct {
	client      client
	readTimeout time.Duration
}

// ReadPoint performs one synchronous read of the Value attribute.
func (s *session) ReadPoint(ctx context.Context, namespace, identifier string) (any, error) {
	nodeID, err := ResolveNodeID(namespace, identifier)
	if err != nil {
		return nil, domain.NewReadError(domain.PointNotFound, identifier, err)
	}
	label := nodeID.String()

	readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	resp, err := s.client.Read(readCtx, &ua.ReadRequest{
		MaxAge:             2000,
		NodesToRead:        []*ua.ReadValueID{{NodeID: nodeID, AttributeID: ua.AttributeIDValue}},
		TimestampsToReturn: ua.TimestampsToReturnBoth,
	})
	if err != nil {
		return nil, classifyReadError(label, err)
	}
	if resp == nil || len(resp.Results) == 0 {
		return nil, domain.NewReadError(domain.SessionInvalid, label, errors.New("empty read response"))
	}

	dv := resp.Results[0]
	if isBad(dv.Status) {
		return nil, classifyReadError(label, dv.Status)
	}
	if dv.Value == nil {
		return nil, nil
	}
	return dv.Value.Value(), nil
}

func (s *session) Close(ctx context.Context) {
	_ = s.client.Close(ctx)
}

func isBad(code ua.StatusCode) bool {
	return uint32(code)&0x80000000 != 0
}

const securityNone = "None"

var securityModes = map[string]string{
	"none":           securityNone,
	"sign":           "Sign",
	"signandencrypt": "SignAndEncrypt",
	"signencrypt":    "SignAndEncrypt",
}

var securityPolicies = map[string]string{
	"none":                ua.SecurityPolicyURINone,
	"basic128rsa15":       ua.SecurityPolicyURIBasic128Rsa15,
	"basic256":            ua.SecurityPolicyURIBasic256,
	"basic256sha256":      ua.SecurityPolicyURIBasic256Sha256,
	"aes128sha256rsaoaep": ua.SecurityPolicyURIAes128Sha256RsaOaep,
	"aes256sha256rsapss":  ua.SecurityPolicyURIAes256Sha256RsaPss,
}

// securityKey folds "Sign_And_Encrypt", "aes128-sha256-rsaoaep" and friends.
func securityKey(s string) string {
	return strings.NewReplacer("_", "", "-", "", "+", "", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
}

func resolveSecurityMode(mode string) (string, error) {
	if m, ok := securityModes[securityKey(mode)]; ok {
		return m, nil
	}
	return "", fmt.Errorf("unknown security mode %q", mode)
}

// resolveSecurityPolicy accepts a short policy name or a full policy URI and
// returns the URI.
func resolveSecurityPolicy(policy string) (string, error) {
	trimmed := strings.TrimSpace(policy)
	for _, uri := range securityPolicies {
		if trimmed == uri {
			return uri, nil
		}
	}
	if uri, ok := securityPolicies[securityKey(trimmed)]; ok {
		return uri, nil
	}
	return "", fmt.Errorf("unknown security policy %q", policy)
}

var _ ports.SourceClient = (*Source)(nil)
