package calendar

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeCredentials writes a service-account JSON file with a freshly
// generated RSA key and returns the path plus the public key for
// signature verification.
func writeCredentials(t *testing.T, tokenURI string) (string, *rsa.PublicKey) {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	creds := map[string]string{
		"client_email": "bot@project.iam.gserviceaccount.com",
		"private_key":  string(pemKey),
		"token_uri":    tokenURI,
	}
	data, _ := json.Marshal(creds)

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path, &priv.PublicKey
}

func TestServiceAccountTokenSource(t *testing.T) {
	t.Run("exchanges signed assertion for token", func(t *testing.T) {
		var gotAssertion string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				t.Fatal(err)
			}
			if got := r.Form.Get("grant_type"); got != jwtGrantType {
				t.Errorf("grant_type = %q", got)
			}
			gotAssertion = r.Form.Get("assertion")

			fmt.Fprint(w, `{"access_token":"at-1","expires_in":3600}`)
		}))
		defer srv.Close()

		path, pub := writeCredentials(t, srv.URL)
		src, err := NewServiceAccountTokenSource(path)
		if err != nil {
			t.Fatalf("loading credentials: %v", err)
		}

		token, err := src.Token(context.Background())
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		if token != "at-1" {
			t.Errorf("token = %q", token)
		}

		// Verify the JWT structure and signature.
		parts := strings.Split(gotAssertion, ".")
		if len(parts) != 3 {
			t.Fatalf("assertion has %d parts", len(parts))
		}

		claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
		if err != nil {
			t.Fatalf("decoding claims: %v", err)
		}
		var claims map[string]any
		json.Unmarshal(claimsJSON, &claims)
		if claims["iss"] != "bot@project.iam.gserviceaccount.com" {
			t.Errorf("iss = %v", claims["iss"])
		}
		if claims["aud"] != srv.URL {
			t.Errorf("aud = %v", claims["aud"])
		}

		sig, err := base64.RawURLEncoding.DecodeString(parts[2])
		if err != nil {
			t.Fatalf("decoding signature: %v", err)
		}
		digest := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
			t.Errorf("signature verification failed: %v", err)
		}
	})

	t.Run("caches token until expiry", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			fmt.Fprint(w, `{"access_token":"at-1","expires_in":3600}`)
		}))
		defer srv.Close()

		path, _ := writeCredentials(t, srv.URL)
		src, err := NewServiceAccountTokenSource(path)
		if err != nil {
			t.Fatal(err)
		}

		for range 3 {
			if _, err := src.Token(context.Background()); err != nil {
				t.Fatal(err)
			}
		}
		if calls != 1 {
			t.Errorf("token endpoint called %d times, want 1", calls)
		}
	})

	t.Run("expired token refreshes", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			fmt.Fprintf(w, `{"access_token":"at-%d","expires_in":3600}`, calls)
		}))
		defer srv.Close()

		path, _ := writeCredentials(t, srv.URL)
		src, err := NewServiceAccountTokenSource(path)
		if err != nil {
			t.Fatal(err)
		}

		if _, err := src.Token(context.Background()); err != nil {
			t.Fatal(err)
		}
		src.expiresAt = time.Now().Add(-time.Minute)

		token, err := src.Token(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if token != "at-2" {
			t.Errorf("token = %q, want refreshed at-2", token)
		}
	})

	t.Run("token endpoint failure surfaces", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		}))
		defer srv.Close()

		path, _ := writeCredentials(t, srv.URL)
		src, err := NewServiceAccountTokenSource(path)
		if err != nil {
			t.Fatal(err)
		}

		if _, err := src.Token(context.Background()); err == nil {
			t.Fatal("expected error from failing token endpoint")
		}
	})

	t.Run("missing credentials file", func(t *testing.T) {
		if _, err := NewServiceAccountTokenSource(filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("incomplete credentials rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sa.json")
		os.WriteFile(path, []byte(`{"client_email":"x@y.z"}`), 0o600)

		if _, err := NewServiceAccountTokenSource(path); err == nil {
			t.Fatal("expected error for missing private_key")
		}
	})
}
