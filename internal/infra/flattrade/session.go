package flattrade

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const tokenURL = "https://authapi.flattrade.in/trade/apitoken"

// cachedToken is the persisted session shape. A token is trusted only if its
// date matches the current calendar date.
type cachedToken struct {
	Token string `json:"token"`
	Date  string `json:"date"` // YYYY-MM-DD
}

// Credentials holds what the session handshake needs.
type Credentials struct {
	UserID    string
	APIKey    string
	APISecret string
}

// Authenticate establishes a venue session, preferring a same-day cached
// token over a full credential exchange. When verifyCached is set the cached
// token is validated with a lightweight call before being trusted; otherwise
// a date match is accepted as-is.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) error {
	today := time.Now().Format("2006-01-02")

	if token := c.loadCachedToken(today); token != "" {
		c.token = token
		if !c.verifyCached {
			slog.Info("flattrade: using cached session token")
			return nil
		}
		if err := c.verifySession(ctx); err == nil {
			slog.Info("flattrade: cached session token verified")
			return nil
		}
		slog.Warn("flattrade: cached token failed verification, re-authenticating")
		c.token = ""
	}

	token, err := c.login(ctx, creds)
	if err != nil {
		return fmt.Errorf("flattrade authentication failed: %w", err)
	}
	c.token = token

	c.storeToken(cachedToken{Token: token, Date: today})
	slog.Info("flattrade: authenticated, session token cached")
	return nil
}

// loadCachedToken returns the cached token when its date matches, else "".
func (c *Client) loadCachedToken(today string) string {
	data, err := os.ReadFile(c.tokenFile)
	if err != nil {
		return ""
	}

	var cached cachedToken
	if err := json.Unmarshal(data, &cached); err != nil {
		slog.Warn("flattrade: could not read cached token file", slog.Any("error", err))
		return ""
	}
	if cached.Date != today {
		return ""
	}
	return cached.Token
}

func (c *Client) storeToken(t cachedToken) {
	data, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := os.WriteFile(c.tokenFile, data, 0600); err != nil {
		slog.Warn("flattrade: could not cache session token", slog.Any("error", err))
	}
}

// login exchanges credentials for a session token. The secret never travels
// in the clear: the venue expects sha256(api_key + api_secret).
func (c *Client) login(ctx context.Context, creds Credentials) (string, error) {
	hash := sha256.Sum256([]byte(creds.APIKey + creds.APISecret))

	body, err := json.Marshal(map[string]string{
		"api_key":    creds.APIKey,
		"api_secret": hex.EncodeToString(hash[:]),
		"uid":        creds.UserID,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Token  string `json:"token"`
		Stat   string `json:"stat"`
		ErrMsg string `json:"emsg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("malformed token response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("venue refused login: %s", out.ErrMsg)
	}
	return out.Token, nil
}

// verifySession makes a lightweight authenticated call to prove the token is
// alive. Used only when verify_cached is enabled.
func (c *Client) verifySession(ctx context.Context) error {
	var out struct {
		Stat string `json:"stat"`
	}
	if err := c.post(ctx, "/UserDetails", map[string]string{"uid": c.userID}, &out); err != nil {
		return err
	}
	if out.Stat != "Ok" {
		return fmt.Errorf("session check returned %q", out.Stat)
	}
	return nil
}

// Token exposes the live session token for the push stream handshake.
func (c *Client) Token() string { return c.token }
