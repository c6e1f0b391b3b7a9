package certutil

import (
	"crypto/x509"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGenerateSelfSigned(t *testing.T) {
	cert, err := GenerateSelfSigned("relay.example.com", 24*time.Hour, []string{"relay.example.com", "10.0.0.5"})
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}

	if cert.Certificate.Subject.CommonName != "relay.example.com" {
		t.Errorf("CommonName = %q, want relay.example.com", cert.Certificate.Subject.CommonName)
	}

	// localhost and the loopback address are always present.
	if !containsHost(cert.Certificate.DNSNames, "localhost") {
		t.Errorf("DNSNames = %v, want localhost included", cert.Certificate.DNSNames)
	}
	if !containsHost(cert.Certificate.DNSNames, "relay.example.com") {
		t.Errorf("DNSNames = %v, want relay.example.com included", cert.Certificate.DNSNames)
	}
	if !containsIP(cert.Certificate.IPAddresses, net.ParseIP("127.0.0.1")) {
		t.Errorf("IPAddresses = %v, want 127.0.0.1 included", cert.Certificate.IPAddresses)
	}
	if !containsIP(cert.Certificate.IPAddresses, net.ParseIP("10.0.0.5")) {
		t.Errorf("IPAddresses = %v, want 10.0.0.5 included", cert.Certificate.IPAddresses)
	}

	hasServerAuth := false
	for _, u := range cert.Certificate.ExtKeyUsage {
		if u == x509.ExtKeyUsageServerAuth {
			hasServerAuth = true
		}
	}
	if !hasServerAuth {
		t.Error("certificate lacks server auth usage")
	}

	if cert.IsExpired() {
		t.Error("freshly generated certificate reports expired")
	}
}

func TestGenerateSelfSigned_DuplicateHostsDeduplicated(t *testing.T) {
	cert, err := GenerateSelfSigned("relay", time.Hour, []string{"localhost", "127.0.0.1"})
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}

	count := 0
	for _, name := range cert.Certificate.DNSNames {
		if name == "localhost" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("localhost appears %d times in DNSNames, want 1", count)
	}
}

func TestFingerprint(t *testing.T) {
	cert, err := GenerateSelfSigned("relay", time.Hour, nil)
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}

	fp := cert.Fingerprint()
	if !strings.HasPrefix(fp, "sha256:") {
		t.Errorf("Fingerprint() = %q, want sha256: prefix", fp)
	}
	if len(fp) != len("sha256:")+64 {
		t.Errorf("Fingerprint() length = %d, want %d", len(fp), len("sha256:")+64)
	}
}

func TestTLSCertificate(t *testing.T) {
	cert, err := GenerateSelfSigned("relay", time.Hour, nil)
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}

	if _, err := cert.TLSCertificate(); err != nil {
		t.Errorf("TLSCertificate() error = %v", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "certs", "server.crt")
	keyPath := filepath.Join(dir, "certs", "server.key")

	generated, err := GenerateSelfSigned("relay", time.Hour, nil)
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}
	if err := generated.SaveToFiles(certPath, keyPath); err != nil {
		t.Fatalf("SaveToFiles() error = %v", err)
	}

	loaded, err := Load(certPath, keyPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Fingerprint() != generated.Fingerprint() {
		t.Errorf("fingerprint mismatch after reload: %s != %s", loaded.Fingerprint(), generated.Fingerprint())
	}
}

func TestLoad_MissingFiles(t *testing.T) {
	if _, err := Load("/nonexistent/server.crt", "/nonexistent/server.key"); err == nil {
		t.Error("Load() with missing files succeeded, want error")
	}
}

func containsHost(hosts []string, want string) bool {
	for _, h := range hosts {
		if h == want {
			return true
		}
	}
	return false
}

func containsIP(ips []net.IP, want net.IP) bool {
	for _, ip := range ips {
		if ip.Equal(want) {
			return true
		}
	}
	return false
}
