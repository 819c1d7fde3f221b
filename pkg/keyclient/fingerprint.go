package keyclient

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"os"
	"runtime"
	"slices"
	"strings"
)

// DeviceIDEnv pins the device id of a process when WithDeviceID is not used.
const DeviceIDEnv = "KEYSERVER_DEVICE_ID"

// FingerprintPrefix namespaces generated device ids so they never collide
// with ids chosen by an operator.
const FingerprintPrefix = "ks1-"

var machineIDPaths = []string{"/etc/machine-id", "/var/lib/dbus/machine-id"}

// ResolveDeviceID returns the device id to validate with, in order of
// precedence: explicit (usually the WithDeviceID value), the
// KEYSERVER_DEVICE_ID environment variable, then GenerateFingerprint.
//
// Containers often lack stable MAC addresses; pin the id explicitly there.
func ResolveDeviceID(explicit string) (string, error) {
	if id := strings.TrimSpace(explicit); id != "" {
		return id, nil
	}
	if id := strings.TrimSpace(os.Getenv(DeviceIDEnv)); id != "" {
		return id, nil
	}
	return GenerateFingerprint()
}

// GenerateFingerprint derives a stable device id from this machine's
// hostname, hardware addresses, machine id, OS and architecture. The result
// is FingerprintPrefix followed by 32 hex characters.
func GenerateFingerprint() (string, error) {
	facts := machineFacts()
	if len(facts) == 0 {
		return "", errors.New("fingerprint: no hostname, hardware address or machine id available")
	}
	facts = append(facts, "os="+runtime.GOOS, "arch="+runtime.GOARCH)
	return fingerprintOf(facts), nil
}

// fingerprintOf hashes labeled facts. Order does not matter.
func fingerprintOf(facts []string) string {
	sorted := slices.Clone(facts)
	slices.Sort(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return FingerprintPrefix + hex.EncodeToString(sum[:16])
}

// machineFacts returns the host-specific facts that are available, each as
// "label=value".
func machineFacts() []string {
	var facts []string
	if host, err := os.Hostname(); err == nil && host != "" {
		facts = append(facts, "host="+strings.ToLower(host))
	}
	for _, mac := range hardwareAddrs() {
		facts = append(facts, "mac="+mac)
	}
	for _, p := range machineIDPaths {
		if b, err := os.ReadFile(p); err == nil {
			if id := strings.TrimSpace(string(b)); id != "" {
				facts = append(facts, "machine-id="+id)
				break
			}
		}
	}
	return facts
}

// hardwareAddrs returns the MAC addresses of non-loopback interfaces.
func hardwareAddrs() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" {
			macs = append(macs, mac)
		}
	}
	return macs
}
