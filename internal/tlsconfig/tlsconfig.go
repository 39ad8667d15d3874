// Package tlsconfig parses the `tls_min_version`, `tls_max_version`,
// `tls_ciphers`, and `tls_curves` directives into a *tls.Config overlay for
// the listener set's TLS termination, grounding spec.md §4.3's "advertises
// ALPN" and certificate-selection duties in a concrete cipher/curve/version
// policy the operator can tune per globals block.
package tlsconfig

import (
	"crypto/tls"
	"fmt"
	"strings"
)

// Version is a named TLS protocol version accepted by tls_min_version and
// tls_max_version.
type Version uint16

const (
	VersionTLS10 Version = tls.VersionTLS10
	VersionTLS11 Version = tls.VersionTLS11
	VersionTLS12 Version = tls.VersionTLS12
	VersionTLS13 Version = tls.VersionTLS13
)

// ParseVersion accepts "1.0".."1.3" (with or without a leading "tls"/"TLS").
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "tls")
	s = strings.TrimPrefix(s, " ")
	switch s {
	case "1.0", "10":
		return VersionTLS10, nil
	case "1.1", "11":
		return VersionTLS11, nil
	case "1.2", "12":
		return VersionTLS12, nil
	case "1.3", "13":
		return VersionTLS13, nil
	}
	return 0, fmt.Errorf("tlsconfig: unrecognized TLS version %q", s)
}

// Cipher is a TLS 1.0-1.2 cipher suite accepted by tls_ciphers. TLS 1.3
// suites are not configurable: crypto/tls picks among them unconditionally.
type Cipher uint16

var ciphersByName = map[string]Cipher{
	"ecdhe-ecdsa-aes128-gcm-sha256": Cipher(tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256),
	"ecdhe-rsa-aes128-gcm-sha256":   Cipher(tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256),
	"ecdhe-ecdsa-aes256-gcm-sha384": Cipher(tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384),
	"ecdhe-rsa-aes256-gcm-sha384":   Cipher(tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384),
	"ecdhe-ecdsa-chacha20-poly1305": Cipher(tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305),
	"ecdhe-rsa-chacha20-poly1305":   Cipher(tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305),
}

// ParseCipher looks up a cipher suite by its conventional dash-cased name
// (e.g. "ecdhe-rsa-aes128-gcm-sha256"), case-insensitively.
func ParseCipher(s string) (Cipher, error) {
	c, ok := ciphersByName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("tlsconfig: unrecognized cipher suite %q", s)
	}
	return c, nil
}

// Curve is an elliptic curve accepted by tls_curves, used for ECDHE key
// exchange preference ordering.
type Curve uint16

var curvesByName = map[string]Curve{
	"x25519": Curve(tls.X25519),
	"p256":   Curve(tls.CurveP256),
	"p384":   Curve(tls.CurveP384),
	"p521":   Curve(tls.CurveP521),
}

func ParseCurve(s string) (Curve, error) {
	c, ok := curvesByName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("tlsconfig: unrecognized curve %q", s)
	}
	return c, nil
}

// Policy is the decoded form of a globals block's TLS-tuning directives.
// A zero Policy leaves every field to crypto/tls's own defaults.
type Policy struct {
	MinVersion Version
	MaxVersion Version
	Ciphers    []Cipher
	Curves     []Curve
}

// ParsePolicy decodes the raw directive arguments (already split on
// whitespace/commas by the config layer) into a Policy. Missing fields are
// left zero.
func ParsePolicy(minVersion, maxVersion string, ciphers, curves []string) (Policy, error) {
	var p Policy
	var err error
	if minVersion != "" {
		if p.MinVersion, err = ParseVersion(minVersion); err != nil {
			return p, err
		}
	}
	if maxVersion != "" {
		if p.MaxVersion, err = ParseVersion(maxVersion); err != nil {
			return p, err
		}
	}
	for _, c := range ciphers {
		cs, err := ParseCipher(c)
		if err != nil {
			return p, err
		}
		p.Ciphers = append(p.Ciphers, cs)
	}
	for _, c := range curves {
		cv, err := ParseCurve(c)
		if err != nil {
			return p, err
		}
		p.Curves = append(p.Curves, cv)
	}
	return p, nil
}

// Apply overlays the Policy onto cfg, leaving fields the Policy doesn't set
// at cfg's existing (zero or caller-supplied) value.
func (p Policy) Apply(cfg *tls.Config) {
	if p.MinVersion != 0 {
		cfg.MinVersion = uint16(p.MinVersion)
	}
	if p.MaxVersion != 0 {
		cfg.MaxVersion = uint16(p.MaxVersion)
	}
	if len(p.Ciphers) > 0 {
		suites := make([]uint16, len(p.Ciphers))
		for i, c := range p.Ciphers {
			suites[i] = uint16(c)
		}
		cfg.CipherSuites = suites
	}
	if len(p.Curves) > 0 {
		curves := make([]tls.CurveID, len(p.Curves))
		for i, c := range p.Curves {
			curves[i] = tls.CurveID(c)
		}
		cfg.CurvePreferences = curves
	}
}
