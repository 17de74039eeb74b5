package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// errNotLoggedIn is returned when a command needs a session and none is stored
var errNotLoggedIn = errors.New("not logged in: run `bizdesk login` first")

// session is what login stores on disk
type session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Email        string `json:"email"`
}

// apiClient calls the bizdesk HTTP API with the stored bearer token
type apiClient struct {
	baseURL   string
	tokenFile string
	http      *http.Client
}

func newAPIClient(baseURL, tokenFile string) *apiClient {
	return &apiClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		tokenFile: tokenFile,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func defaultTokenFile() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".bizdesk", "session.json")
}

func (c *apiClient) saveSession(s session) error {
	if err := os.MkdirAll(filepath.Dir(c.tokenFile), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(c.tokenFile, data, 0o600)
}

func (c *apiClient) loadSession() (session, error) {
	var s session
	data, err := os.ReadFile(c.tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return s, errNotLoggedIn
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil || s.AccessToken == "" {
		return s, errNotLoggedIn
	}
	return s, nil
}

func (c *apiClient) clearSession() error {
	err := os.Remove(c.tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// apiError is a non-2xx answer from the API
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// do sends body as JSON and decodes a JSON answer into out when both are set.
// Authenticated requests use the stored session.
func (c *apiClient) do(ctx context.Context, method, path string, authenticated bool, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if authenticated {
		s, err := c.loadSession()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
