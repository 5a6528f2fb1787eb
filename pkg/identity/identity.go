// Package identity derives the opaque identity strings the trust pipeline
// keys on. Raw network addresses and contact details are hashed with a
// process-wide salt before they reach any store or log line; the pipeline
// only ever sees the digests.
package identity

import (
	"encoding/hex"
	"net"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	networkPrefix = "net:"
	contactPrefix = "ctc:"
)

// Deriver turns raw request attributes into opaque, salted identities.
type Deriver struct {
	salt []byte
}

// NewDeriver creates a Deriver with the given salt. The salt must stay stable
// across restarts or the sybil guard loses its history.
func NewDeriver(salt string) *Deriver {
	return &Deriver{salt: []byte(salt)}
}

// Network derives the network-axis identity from a remote address.
// Accepts "host:port" or a bare host; IPv6 addresses are normalized.
func (d *Deriver) Network(remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	if ip := net.ParseIP(host); ip != nil {
		host = ip.String()
	}
	return networkPrefix + d.digest(host)
}

// Contact derives the contact-axis identity from an optional contact string
// (email or phone). Returns "" when no contact was supplied.
func (d *Deriver) Contact(contact string) string {
	contact = strings.ToLower(strings.TrimSpace(contact))
	if contact == "" {
		return ""
	}
	return contactPrefix + d.digest(contact)
}

func (d *Deriver) digest(value string) string {
	h := sha3.New256()
	h.Write(d.salt)
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
