package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(KeyDiscoveryURL, "opc.tcp://192.168.49.10:4840")
	t.Setenv(KeyAgentURL, "127.0.0.1")
	t.Setenv(KeyAgentPort, "7070")
	t.Setenv(KeyUsername, "")
	t.Setenv(KeyPassword, "")
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Poll.Interval != time.Second {
		t.Fatalf("expected poll interval default 1s, got %s", cfg.Poll.Interval)
	}
	if cfg.Poll.TransportBackoff != 5*time.Second {
		t.Fatalf("expected transport backoff 5s, got %s", cfg.Poll.TransportBackoff)
	}
	if cfg.Poll.UnexpectedBackoff != 10*time.Second {
		t.Fatalf("expected unexpected backoff 10s, got %s", cfg.Poll.UnexpectedBackoff)
	}
	if cfg.OPCUA.ConnectTimeout != 5*time.Second {
		t.Fatalf("expected connect timeout 5s, got %s", cfg.OPCUA.ConnectTimeout)
	}
	if cfg.Metrics.Addr != ":9100" {
		t.Fatalf("expected default metrics addr :9100, got %s", cfg.Metrics.Addr)
	}
	if cfg.ServiceName != DefaultServiceName {
		t.Fatalf("expected service name %s, got %s", DefaultServiceName, cfg.ServiceName)
	}
	if cfg.Sink.Port != 7070 || cfg.Sink.Host != "127.0.0.1" {
		t.Fatalf("unexpected sink %+v", cfg.Sink)
	}
	if cfg.OPCUA.Endpoint != "opc.tcp://192.168.49.10:4840" {
		t.Fatalf("unexpected endpoint %s", cfg.OPCUA.Endpoint)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(KeyPollInterval, "250ms")
	t.Setenv(KeyTransportBackoff, "2")
	t.Setenv(KeyStartupDelay, "30s")
	t.Setenv(KeyUsername, "operator")
	t.Setenv(KeyPassword, "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Poll.Interval != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", cfg.Poll.Interval)
	}
	if cfg.Poll.TransportBackoff != 2*time.Second {
		t.Fatalf("expected plain seconds to parse, got %s", cfg.Poll.TransportBackoff)
	}
	if cfg.StartupDelay != 30*time.Second {
		t.Fatalf("expected startup delay 30s, got %s", cfg.StartupDelay)
	}
	if cfg.OPCUA.Username != "operator" || cfg.OPCUA.Password != "secret" {
		t.Fatalf("credentials not picked up: %+v", cfg.OPCUA)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	cases := map[string]string{
		KeyDiscoveryURL: "",
		KeyAgentURL:     "",
		KeyAgentPort:    "not-a-port",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(key, value)

			_, err := Load()
			if !errors.Is(err, domain.ErrConfig) {
				t.Fatalf("expected ErrConfig for %s=%q, got %v", key, value, err)
			}
		})
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(KeyPollInterval, "soon")
	if _, err := Load(); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestLoadRejectsUnknownSecurityPolicy(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(KeySecurityMode, "SignAndEncrypt")
	t.Setenv(KeySecurityPolicy, "Basic256Sha265")
	if _, err := Load(); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig for a mistyped policy, got %v", err)
	}
}

func TestExtractEndpoint(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"opc.tcp://10.0.0.7:4840", "opc.tcp://10.0.0.7:4840"},
		{"urn:factory discovery=opc.tcp://172.16.0.2:48010/path", "opc.tcp://172.16.0.2:48010"},
		{"opc.tcp://plc-1.local:4840", "opc.tcp://plc-1.local:4840"},
	}
	for _, tc := range cases {
		got, err := ExtractEndpoint(tc.in)
		if err != nil {
			t.Fatalf("ExtractEndpoint(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ExtractEndpoint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := ExtractEndpoint("just some text"); err == nil {
		t.Fatalf("expected error without endpoint")
	}
}

func TestLoadPointTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
fusiondataservice:
  specification:
    - node_id: 2
      identifier: state1
      parameter: machine_state
    - namespace: "3"
      identifier: 1001
      parameter: spindle_speed
    - identifier: "ns=4;s=Line1.Temp"
      parameter: temperature
    - node_id: 2
      identifier: state1
      parameter: machine_state
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	table, err := LoadPointTable(path, DefaultServiceName)
	if err != nil {
		t.Fatalf("load point table: %v", err)
	}
	if table.Len() != 4 {
		t.Fatalf("expected 4 entries including the duplicate, got %d", table.Len())
	}

	want := []domain.PointMapping{
		{Namespace: "2", Identifier: "state1", Property: "machine_state"},
		{Namespace: "3", Identifier: "1001", Property: "spindle_speed"},
		{Namespace: "", Identifier: "ns=4;s=Line1.Temp", Property: "temperature"},
		{Namespace: "2", Identifier: "state1", Property: "machine_state"},
	}
	for i, got := range table.Points() {
		if got != want[i] {
			t.Fatalf("entry %d: expected %+v, got %+v", i, want[i], got)
		}
	}
}

func TestParsePointTableJSON(t *testing.T) {
	raw := []byte(`{"fusiondataservice": {"specification": [{"node_id": "2", "identifier": "speed", "parameter": "speed"}]}}`)
	table, err := ParsePointTable(raw, DefaultServiceName)
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if table.Len() != 1 || table.At(0).Property != "speed" {
		t.Fatalf("unexpected table %+v", table.Points())
	}
}

func TestParsePointTableIgnoresSiblingKeys(t *testing.T) {
	raw := []byte(`version: 1
owner: line-3
otherservice: [a, b]
fusiondataservice:
  specification:
    - node_id: 2
      identifier: state1
      parameter: machine_state
`)
	table, err := ParsePointTable(raw, DefaultServiceName)
	if err != nil {
		t.Fatalf("parse with sibling keys: %v", err)
	}
	if table.Len() != 1 || table.At(0) != (domain.PointMapping{Namespace: "2", Identifier: "state1", Property: "machine_state"}) {
		t.Fatalf("unexpected table %+v", table.Points())
	}
}

func TestParsePointTableErrors(t *testing.T) {
	cases := map[string]string{
		"malformed":         "fusiondataservice: [",
		"empty":             "",
		"missing service":   "otherservice:\n  specification: []\n",
		"missing spec key":  "fusiondataservice:\n  points: []\n",
		"empty spec":        "fusiondataservice:\n  specification: []\n",
		"missing parameter": "fusiondataservice:\n  specification:\n    - identifier: x\n",
		"scalar service":    "fusiondataservice: 1\n",
		"nested identifier": "fusiondataservice:\n  specification:\n    - identifier: {a: b}\n      parameter: p\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePointTable([]byte(raw), DefaultServiceName)
			if !errors.Is(err, domain.ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestLoadPointTableMissingFile(t *testing.T) {
	_, err := LoadPointTable(filepath.Join(t.TempDir(), "absent.yaml"), DefaultServiceName)
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
