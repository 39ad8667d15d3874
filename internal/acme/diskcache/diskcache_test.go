package diskcache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadAccountRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	fp := Fingerprint("https://example.test/directory|ops@example.test")

	acct := &Account{Directory: "https://example.test/directory", Contact: "ops@example.test", KeyPEM: []byte("pem-bytes")}
	if err := s.SaveAccount(fp, acct); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}

	got, ok := s.LoadAccount(fp)
	if !ok {
		t.Fatal("expected account to load")
	}
	if string(got.KeyPEM) != "pem-bytes" {
		t.Fatalf("unexpected KeyPEM: %q", got.KeyPEM)
	}
}

func TestLoadAccountMissingIsTolerated(t *testing.T) {
	s := New(t.TempDir())
	if _, ok := s.LoadAccount("nonexistent"); ok {
		t.Fatal("expected missing account file to report not-found, not error")
	}
}

func TestLoadAccountCorruptedIsTolerated(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	fp := "broken"
	path := filepath.Join(dir, "accounts", fp+".json")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.LoadAccount(fp); ok {
		t.Fatal("expected corrupted cache file to be treated as absent")
	}
}

func TestSaveAccountTruncatesPriorContent(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	fp := "acct"

	big := &Account{KeyPEM: []byte("a very long previous value that should not linger")}
	if err := s.SaveAccount(fp, big); err != nil {
		t.Fatal(err)
	}
	small := &Account{KeyPEM: []byte("short")}
	if err := s.SaveAccount(fp, small); err != nil {
		t.Fatal(err)
	}

	got, ok := s.LoadAccount(fp)
	if !ok {
		t.Fatal("expected account to load")
	}
	if string(got.KeyPEM) != "short" {
		t.Fatalf("expected truncated rewrite, got %q", got.KeyPEM)
	}
}

func TestBundleRoundTripAndDeleteAccount(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	fp := Fingerprint("example.test")

	bundle := &Bundle{Domains: []string{"example.test"}, CertPEM: []byte("cert"), KeyPEM: []byte("key")}
	if err := s.SaveBundle(fp, bundle); err != nil {
		t.Fatal(err)
	}
	got, ok := s.LoadBundle(fp)
	if !ok || string(got.CertPEM) != "cert" {
		t.Fatalf("unexpected bundle: %+v ok=%v", got, ok)
	}

	acctFP := "to-delete"
	if err := s.SaveAccount(acctFP, &Account{}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteAccount(acctFP); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, ok := s.LoadAccount(acctFP); ok {
		t.Fatal("expected account to be gone after delete")
	}
	if err := s.DeleteAccount(acctFP); err != nil {
		t.Fatalf("expected deleting an already-absent account to be a no-op, got %v", err)
	}
}
