package tlsconfig

import (
	"crypto/tls"
	"testing"
)

func TestParsePolicyAppliesOverlay(t *testing.T) {
	p, err := ParsePolicy("1.2", "1.3", []string{"ECDHE-RSA-AES128-GCM-SHA256"}, []string{"x25519", "P256"})
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}

	cfg := &tls.Config{}
	p.Apply(cfg)

	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %v, want TLS 1.2", cfg.MinVersion)
	}
	if cfg.MaxVersion != tls.VersionTLS13 {
		t.Errorf("MaxVersion = %v, want TLS 1.3", cfg.MaxVersion)
	}
	if len(cfg.CipherSuites) != 1 || cfg.CipherSuites[0] != tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256 {
		t.Errorf("CipherSuites = %v, want [TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256]", cfg.CipherSuites)
	}
	if len(cfg.CurvePreferences) != 2 || cfg.CurvePreferences[0] != tls.X25519 || cfg.CurvePreferences[1] != tls.CurveP256 {
		t.Errorf("CurvePreferences = %v, want [X25519 P256]", cfg.CurvePreferences)
	}
}

func TestParsePolicyZeroValueLeavesConfigUntouched(t *testing.T) {
	p, err := ParsePolicy("", "", nil, nil)
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS10}
	p.Apply(cfg)

	if cfg.MinVersion != tls.VersionTLS10 {
		t.Errorf("MinVersion overwritten by zero-value Policy: %v", cfg.MinVersion)
	}
	if cfg.CipherSuites != nil || cfg.CurvePreferences != nil {
		t.Errorf("zero-value Policy should not set CipherSuites/CurvePreferences")
	}
}

func TestParsePolicyRejectsUnknownVersion(t *testing.T) {
	if _, err := ParsePolicy("1.4", "", nil, nil); err == nil {
		t.Fatal("expected error for unrecognized TLS version")
	}
}

func TestParseCipherUnknownName(t *testing.T) {
	if _, err := ParseCipher("rc4-md5"); err == nil {
		t.Fatal("expected error for unsupported cipher suite")
	}
}
