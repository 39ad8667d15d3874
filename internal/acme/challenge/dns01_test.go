package challenge

import (
	"context"
	"testing"

	"github.com/libdns/libdns"
	"github.com/mholt/acmez/v3/acme"
)

type fakeProvider struct {
	set []libdns.Record
	del []libdns.Record
}

func (f *fakeProvider) SetRecords(ctx context.Context, zone string, recs []libdns.Record) ([]libdns.Record, error) {
	f.set = append(f.set, recs...)
	return recs, nil
}

func (f *fakeProvider) DeleteRecords(ctx context.Context, zone string, recs []libdns.Record) ([]libdns.Record, error) {
	f.del = append(f.del, recs...)
	return recs, nil
}

func TestDNS01PresentSetsTXTRecord(t *testing.T) {
	p := &fakeProvider{}
	s := NewDNS01Solver(p, "example.test.")
	chal := acme.Challenge{Identifier: acme.Identifier{Type: "dns", Value: "foo.example.test"}, KeyAuthorization: "abc.xyz"}

	if err := s.Present(context.Background(), chal); err != nil {
		t.Fatalf("Present: %v", err)
	}
	if len(p.set) != 1 {
		t.Fatalf("expected one TXT record set, got %d", len(p.set))
	}
	txt, ok := p.set[0].(libdns.TXT)
	if !ok {
		t.Fatalf("expected a libdns.TXT record, got %T", p.set[0])
	}
	if txt.Text != dns01Value("abc.xyz") {
		t.Fatalf("unexpected TXT value %q", txt.Text)
	}

	if err := s.CleanUp(context.Background(), chal); err != nil {
		t.Fatalf("CleanUp: %v", err)
	}
	if len(p.del) != 1 {
		t.Fatalf("expected the created record to be deleted, got %d deletes", len(p.del))
	}
}

func TestDNS01ValueIsDeterministic(t *testing.T) {
	a := dns01Value("same-key-auth")
	b := dns01Value("same-key-auth")
	if a != b {
		t.Fatal("expected dns01Value to be deterministic for the same input")
	}
	if dns01Value("a") == dns01Value("b") {
		t.Fatal("expected distinct key authorizations to produce distinct values")
	}
}
