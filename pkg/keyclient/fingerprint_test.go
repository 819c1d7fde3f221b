package keyclient

import (
	"strings"
	"testing"
)

func TestGenerateFingerprint_Format(t *testing.T) {
	fp, err := GenerateFingerprint()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(fp, FingerprintPrefix) {
		t.Errorf("expected prefix %q, got %s", FingerprintPrefix, fp)
	}
	// prefix + 16 bytes of SHA-256 in hex
	if len(fp) != len(FingerprintPrefix)+32 {
		t.Errorf("expected %d chars, got %d: %s", len(FingerprintPrefix)+32, len(fp), fp)
	}
}

func TestGenerateFingerprint_Deterministic(t *testing.T) {
	fp1, err := GenerateFingerprint()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fp2, err := GenerateFingerprint()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp1 != fp2 {
		t.Errorf("fingerprint should be deterministic: %s != %s", fp1, fp2)
	}
}

func TestGenerateFingerprint_IgnoresEnv(t *testing.T) {
	t.Setenv(DeviceIDEnv, "custom-device-from-env")
	fp, err := GenerateFingerprint()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(fp, FingerprintPrefix) {
		t.Errorf("expected a generated fingerprint, got %q", fp)
	}
}

func TestFingerprintOf_OrderIndependent(t *testing.T) {
	a := fingerprintOf([]string{"host=a", "mac=00:11", "os=linux"})
	b := fingerprintOf([]string{"os=linux", "host=a", "mac=00:11"})
	if a != b {
		t.Errorf("fact order changed the fingerprint: %s != %s", a, b)
	}
	if c := fingerprintOf([]string{"host=b", "mac=00:11", "os=linux"}); c == a {
		t.Errorf("different hosts produced the same fingerprint %s", c)
	}
}

func TestResolveDeviceID_Precedence(t *testing.T) {
	t.Setenv(DeviceIDEnv, "from-env")

	id, err := ResolveDeviceID(" pinned ")
	if err != nil || id != "pinned" {
		t.Errorf("explicit id should win, got %q, %v", id, err)
	}

	id, err = ResolveDeviceID("")
	if err != nil || id != "from-env" {
		t.Errorf("env id should be used when nothing is pinned, got %q, %v", id, err)
	}

	t.Setenv(DeviceIDEnv, "  ")
	id, err = ResolveDeviceID("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(id, FingerprintPrefix) {
		t.Errorf("expected the machine fingerprint, got %q", id)
	}
}
