// Package device derives human-readable device names and stable fingerprints
// from User-Agent strings. The display name is recorded when a device is
// bound to an agent so administrators can recognize what they are resetting.
package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

// FriendlyName parses a User-Agent into a short "Browser on Platform" label.
// Unknown or empty agents yield a generic label rather than an error.
func FriendlyName(rawUA string) string {
	if strings.TrimSpace(rawUA) == "" {
		return "Unknown Device"
	}

	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	platform := ua.OSInfo().Name
	if platform == "" {
		platform = ua.Platform()
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	if platform == "" {
		platform = "Unknown Platform"
	}
	return strings.TrimSpace(fmt.Sprintf("%s on %s", browser, platform))
}

// Fingerprint computes a stable SHA-256 hex fingerprint of the device
// characteristics. Minor browser patch versions are ignored so routine
// updates do not change the fingerprint.
func Fingerprint(rawUA string) string {
	ua := useragent.New(rawUA)
	browser, version := ua.Browser()
	majorVersion, _, _ := strings.Cut(version, ".")
	osInfo := ua.OSInfo()

	material := strings.Join([]string{
		browser,
		majorVersion,
		osInfo.Name,
		ua.Platform(),
	}, "|")

	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}
