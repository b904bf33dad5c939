package session

import (
	"crypto/sha256"
	"fmt"
	"net"
)

// PrivacyFilter masks session fields before they leave the process over the
// status API. The zero value is a no-op filter.
type PrivacyFilter struct {
	MaskRemoteAddrs bool
	MaskSessionIDs  bool
	MaskEventData   bool
}

// Apply returns a copy of the session state with sensitive fields masked
// according to the filter configuration. The original state is never modified.
func (f *PrivacyFilter) Apply(s *SessionState) *SessionState {
	masked := s.Clone()

	if f.MaskRemoteAddrs && masked.Remote != "" {
		masked.Remote = maskRemote(masked.Remote)
	}

	if f.MaskSessionIDs && masked.ID != "" {
		masked.ID = shortHash(masked.ID)
	}

	if f.MaskEventData {
		masked.LastEventData = ""
		masked.LastError = ""
	}

	return masked
}

// FilterSlice returns a new slice with privacy masking applied to each
// session. The original slice is not modified.
func (f *PrivacyFilter) FilterSlice(sessions []*SessionState) []*SessionState {
	result := make([]*SessionState, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, f.Apply(s))
	}
	return result
}

// IsNoop reports whether the filter does nothing.
func (f *PrivacyFilter) IsNoop() bool {
	return !f.MaskRemoteAddrs && !f.MaskSessionIDs && !f.MaskEventData
}

// maskRemote keeps the port so concurrent connections stay distinguishable.
func maskRemote(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return shortHash(addr)
	}
	return net.JoinHostPort(shortHash(host), port)
}

// shortHash returns a truncated SHA-256 hex digest for an opaque identifier.
func shortHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}
