package device

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DeviceSuite covers user-agent parsing and fingerprint stability.
// Deterministic hashing is a pure function contract not exercised anywhere
// else.
type DeviceSuite struct {
	suite.Suite
}

func TestDeviceSuite(t *testing.T) {
	suite.Run(t, new(DeviceSuite))
}

func (s *DeviceSuite) TestFriendlyName() {
	s.Run("empty user agent returns unknown device", func() {
		s.Equal("Unknown Device", FriendlyName(""))
	})

	s.Run("chrome on android names browser and platform", func() {
		ua := "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
		name := FriendlyName(ua)
		s.Contains(name, "Chrome")
		s.Contains(name, "on")
	})

	s.Run("safari on iphone includes platform", func() {
		ua := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
		name := FriendlyName(ua)
		s.Contains(name, "on")
		s.Contains(name, "iPhone")
	})

	s.Run("no leading or trailing whitespace", func() {
		ua := "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
		name := FriendlyName(ua)
		s.Equal(name, strings.TrimSpace(name))
	})
}

func (s *DeviceSuite) TestFingerprint() {
	s.Run("deterministic for the same user agent", func() {
		ua := "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Mobile Safari/537.36"
		s.Equal(Fingerprint(ua), Fingerprint(ua))
		s.Len(Fingerprint(ua), 64) // SHA-256 hex
	})

	s.Run("patch version changes do not affect fingerprint", func() {
		ua1 := "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Mobile Safari/537.36"
		ua2 := "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.224 Mobile Safari/537.36"
		s.Equal(Fingerprint(ua1), Fingerprint(ua2))
	})

	s.Run("major version changes do affect fingerprint", func() {
		ua1 := "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
		ua2 := "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Mobile Safari/537.36"
		s.NotEqual(Fingerprint(ua1), Fingerprint(ua2))
	})
}
