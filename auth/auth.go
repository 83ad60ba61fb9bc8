// Package auth is a thin client for the backend connection registry (§6):
// login, connection registration/listing/removal, and logout, plus the
// session.json persistence of the resulting session token.
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package auth

import (
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const sessionHeader = "kerr_session"

// Session is the persisted auth state, written to session.json in the
// host's user config directory.
type Session struct {
	SessionID         string `json:"session_id"`
	IsNewRegistration bool   `json:"is_new_registration"`
}

// Client talks to the backend registry over HTTPS.
type Client struct {
	baseURL string
	http    *fasthttp.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &fasthttp.Client{Name: "kerr-auth"},
	}
}

// LoginWithCode exchanges a one-time device code for a session, mirroring
// the backend's OAuth2-device-code-style sign-in flow.
func (c *Client) LoginWithCode(code string) (Session, error) {
	var sess Session
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return sess, err
	}
	raw, err := c.post("/login_with_code", "", body)
	if err != nil {
		return sess, err
	}
	err = json.Unmarshal(raw, &sess)
	return sess, err
}

// RegisterConnection advertises this host's connection string so the
// backend's connection list can surface it to authorized clients.
func (c *Client) RegisterConnection(sessionID, connString string) error {
	body, err := json.Marshal(map[string]string{"connection_string": connString})
	if err != nil {
		return err
	}
	_, err = c.post("/register_connection", sessionID, body)
	return err
}

// Connections lists the connections currently registered for sessionID.
func (c *Client) Connections(sessionID string) ([]string, error) {
	raw, err := c.get("/connections", sessionID)
	if err != nil {
		return nil, err
	}
	var conns []string
	if err := json.Unmarshal(raw, &conns); err != nil {
		return nil, err
	}
	return conns, nil
}

// RemoveConnection deletes a previously registered connection.
func (c *Client) RemoveConnection(sessionID, connString string) error {
	return c.delete("/connection", sessionID, []byte(connString))
}

// Logout invalidates sessionID on the backend.
func (c *Client) Logout(sessionID string) error {
	_, err := c.post("/logout", sessionID, nil)
	return err
}

func (c *Client) post(path, sessionID string, body []byte) ([]byte, error) {
	return c.do(fasthttp.MethodPost, path, sessionID, body)
}

func (c *Client) get(path, sessionID string) ([]byte, error) {
	return c.do(fasthttp.MethodGet, path, sessionID, nil)
}

func (c *Client) delete(path, sessionID string, body []byte) error {
	_, err := c.do(fasthttp.MethodDelete, path, sessionID, body)
	return err
}

func (c *Client) do(method, path, sessionID string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	if err := c.http.Do(req, resp); err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	if resp.StatusCode() >= 300 {
		return nil, errors.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode(), resp.Body())
	}
	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, nil
}

// SessionPath returns the path session.json is persisted at.
func SessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "kerr", "session.json"), nil
}

// LoadSession reads the persisted session, if any.
func LoadSession() (Session, error) {
	var sess Session
	path, err := SessionPath()
	if err != nil {
		return sess, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return sess, err
	}
	err = json.Unmarshal(raw, &sess)
	return sess, err
}

// SaveSession persists sess to session.json, creating parent directories.
func SaveSession(sess Session) error {
	path, err := SessionPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
