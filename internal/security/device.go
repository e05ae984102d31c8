package security

import (
	"crypto/sha256"
	"encoding/base64"
)

const deviceIDLength = 32

// DeviceFingerprint derives a coarse device key from the user agent and remote
// address. The same pair always maps to the same id. A changed IP (mobile
// networks, proxies) yields a new id and is treated as a new device.
//
// The pair is digested before truncation; truncating the raw encoding would
// drop the IP entirely for any user agent longer than 24 bytes.
func DeviceFingerprint(userAgent, remoteIP string) string {
	sum := sha256.Sum256([]byte(userAgent + "-" + remoteIP))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:deviceIDLength]
}
