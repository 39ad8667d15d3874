package challenge

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/libdns/libdns"
	"github.com/mholt/acmez/v3/acme"
	"github.com/miekg/dns"
)

// Provider is the subset of a libdns DNS provider adapter DNS-01 needs.
// Individual DNS-provider API adapters are external collaborators — this
// package only depends on the libdns.RecordSetter/RecordDeleter contract,
// never a specific provider.
type Provider interface {
	libdns.RecordSetter
	libdns.RecordDeleter
}

// DNS01Solver drives a libdns provider to set the _acme-challenge TXT
// record and waits for propagation by querying a resolver directly via
// miekg/dns.
type DNS01Solver struct {
	Provider        Provider
	Zone            string // the zone the provider manages, e.g. "example.com."
	Resolvers       []string
	PropagationWait time.Duration
	PollInterval    time.Duration

	records map[string]libdns.Record // challenge domain -> created record, for CleanUp
}

func NewDNS01Solver(provider Provider, zone string) *DNS01Solver {
	return &DNS01Solver{
		Provider:        provider,
		Zone:            zone,
		Resolvers:       []string{"8.8.8.8:53", "1.1.1.1:53"},
		PropagationWait: 2 * time.Minute,
		PollInterval:    5 * time.Second,
		records:         map[string]libdns.Record{},
	}
}

// dns01Value computes the TXT record value RFC 8555 §8.4 specifies:
// base64url(sha256(keyAuthorization)), unpadded.
func dns01Value(keyAuthorization string) string {
	digest := sha256.Sum256([]byte(keyAuthorization))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

func (s *DNS01Solver) Present(ctx context.Context, chal acme.Challenge) error {
	name := "_acme-challenge." + chal.Identifier.Value
	rec := libdns.TXT{
		Name: libdns.RelativeName(name+".", s.Zone),
		Text: dns01Value(chal.KeyAuthorization),
		TTL:  60 * time.Second,
	}

	created, err := s.Provider.SetRecords(ctx, s.Zone, []libdns.Record{rec})
	if err != nil {
		return fmt.Errorf("dns-01: set TXT record: %w", err)
	}
	if len(created) > 0 {
		s.records[chal.Identifier.Value] = created[0]
	} else {
		s.records[chal.Identifier.Value] = rec
	}
	return nil
}

// Wait polls the configured resolvers directly (bypassing any caching
// recursive resolver the host might otherwise hit) until the TXT record is
// observed or PropagationWait elapses.
func (s *DNS01Solver) Wait(ctx context.Context, chal acme.Challenge) error {
	name := "_acme-challenge." + chal.Identifier.Value + "."
	want := dns01Value(chal.KeyAuthorization)

	deadline := time.Now().Add(s.PropagationWait)
	for {
		if s.lookupTXT(name, want) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("dns-01: TXT record for %s did not propagate within %s", name, s.PropagationWait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.PollInterval):
		}
	}
}

func (s *DNS01Solver) lookupTXT(name, want string) bool {
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeTXT)

	for _, resolver := range s.Resolvers {
		c := new(dns.Client)
		c.Timeout = 5 * time.Second
		resp, _, err := c.Exchange(m, resolver)
		if err != nil || resp == nil {
			continue
		}
		for _, ans := range resp.Answer {
			if txt, ok := ans.(*dns.TXT); ok {
				for _, v := range txt.Txt {
					if strings.TrimSpace(v) == want {
						return true
					}
				}
			}
		}
	}
	return false
}

func (s *DNS01Solver) CleanUp(ctx context.Context, chal acme.Challenge) error {
	rec, ok := s.records[chal.Identifier.Value]
	if !ok {
		return nil
	}
	delete(s.records, chal.Identifier.Value)
	_, err := s.Provider.DeleteRecords(ctx, s.Zone, []libdns.Record{rec})
	return err
}
