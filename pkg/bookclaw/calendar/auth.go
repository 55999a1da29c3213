// Package calendar – auth.go implements service-account authentication
// for the Google Calendar API: a signed JWT assertion is exchanged for a
// short-lived access token, which is cached until close to expiry.
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
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	// calendarScope grants read/write access to calendars and events.
	calendarScope = "https://www.googleapis.com/auth/calendar https://www.googleapis.com/auth/calendar.events"

	// jwtGrantType is the OAuth2 grant type for JWT bearer assertions.
	jwtGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// tokenExpirySlack refreshes tokens this long before they expire.
	tokenExpirySlack = 60 * time.Second
)

// serviceAccountKey mirrors the Google service-account credentials JSON.
type serviceAccountKey struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// ServiceAccountTokenSource issues access tokens from a service-account
// key file. Safe for concurrent use.
type ServiceAccountTokenSource struct {
	email      string
	privateKey *rsa.PrivateKey
	tokenURI   string
	httpClient *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewServiceAccountTokenSource loads a service-account key file and
// returns a token source for the calendar scopes.
func NewServiceAccountTokenSource(credentialsPath string) (*ServiceAccountTokenSource, error) {
	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var key serviceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("credentials file missing client_email or private_key")
	}
	if key.TokenURI == "" {
		key.TokenURI = "https://oauth2.googleapis.com/token"
	}

	priv, err := parseRSAPrivateKey(key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	return &ServiceAccountTokenSource{
		email:      key.ClientEmail,
		privateKey: priv,
		tokenURI:   key.TokenURI,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Token returns a cached access token, refreshing it when expired.
func (s *ServiceAccountTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt.Add(-tokenExpirySlack)) {
		return s.token, nil
	}

	assertion, err := s.signAssertion(time.Now())
	if err != nil {
		return "", fmt.Errorf("signing JWT assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", jwtGrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURI,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("parsing token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty access_token")
	}

	s.token = tokenResp.AccessToken
	s.expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	return s.token, nil
}

// signAssertion builds and signs the RS256 JWT for the token exchange.
func (s *ServiceAccountTokenSource) signAssertion(now time.Time) (string, error) {
	header := map[string]string{"alg": "RS256", "typ": "JWT"}
	claims := map[string]any{
		"iss":   s.email,
		"scope": calendarScope,
		"aud":   s.tokenURI,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	enc := base64.RawURLEncoding
	signingInput := enc.EncodeToString(headerJSON) + "." + enc.EncodeToString(claimsJSON)

	digest := sha256.Sum256([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return "", err
	}

	return signingInput + "." + enc.EncodeToString(sig), nil
}

// parseRSAPrivateKey decodes a PEM-encoded RSA private key in either
// PKCS#8 (Google's format) or PKCS#1 encoding.
func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
		return rsaKey, nil
	}

	return x509.ParsePKCS1PrivateKey(block.Bytes)
}
