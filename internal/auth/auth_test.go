package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
)

var _ bridge.TokenProvider = (*Signer)(nil)
var _ bridge.TokenProvider = (*HTTPProvider)(nil)

func testSigner(now time.Time) *Signer {
	return &Signer{
		Secret:   []byte(strings.Repeat("k", 32)),
		Issuer:   "embed-host",
		Audience: "ts.example.com",
		Username: "analyst",
		TTL:      time.Minute,
		Now:      func() time.Time { return now },
	}
}

func TestSignerRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := testSigner(now)

	token, err := s.Token(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "analyst", claims.Username)
	assert.Equal(t, "analyst", claims.Subject)
	assert.Equal(t, "embed-host", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, now.Add(time.Minute).Unix(), claims.ExpiresAt.Unix())

	other, err := s.Token(context.Background())
	require.NoError(t, err)
	otherClaims, err := s.Verify(other)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, otherClaims.ID)
}

func TestSignerExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token, err := testSigner(now).Token(context.Background())
	require.NoError(t, err)

	_, err = testSigner(now.Add(2 * time.Minute)).Verify(token)
	assert.Error(t, err)
}

func TestSignerWrongSecret(t *testing.T) {
	now := time.Now()
	token, err := testSigner(now).Token(context.Background())
	require.NoError(t, err)

	other := testSigner(now)
	other.Secret = []byte(strings.Repeat("z", 32))
	_, err = other.Verify(token)
	assert.Error(t, err)
}

func TestSignerValidation(t *testing.T) {
	s := testSigner(time.Now())
	s.Secret = []byte("short")
	_, err := s.Token(context.Background())
	assert.Error(t, err)

	s = testSigner(time.Now())
	s.Username = ""
	_, err = s.Token(context.Background())
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = testSigner(time.Now()).Token(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHTTPProvider(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		ctype   string
		body    string
		want    string
		wantErr bool
	}{
		{"JSON", http.StatusOK, "application/json", `{"token":"tok-json"}`, "tok-json", false},
		{"PlainText", http.StatusOK, "text/plain", "tok-plain\n", "tok-plain", false},
		{"EmptyJSON", http.StatusOK, "application/json", `{"token":""}`, "", true},
		{"Empty", http.StatusOK, "text/plain", "", "", true},
		{"ServerError", http.StatusInternalServerError, "text/plain", "boom", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "secret-key", r.Header.Get("X-Api-Key"))
				var req tokenRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "analyst", req.Username)

				w.Header().Set("Content-Type", tt.ctype)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := &HTTPProvider{
				Endpoint: srv.URL,
				Username: "analyst",
				Header:   http.Header{"X-Api-Key": []string{"secret-key"}},
			}
			got, err := p.Token(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPProviderCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := (&HTTPProvider{Endpoint: srv.URL}).Token(ctx)
	assert.Error(t, err)
}
