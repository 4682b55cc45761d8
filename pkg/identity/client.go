// Package identity is the client for the platform's identity service. The
// gateway never owns user records, password hashes or token issuance; it
// delegates credential checks and just-in-time provisioning over HTTP.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/capability"
	"github.com/platinummonkey/gatehouse/pkg/provider"
)

// Client implements provider.Provisioner against the identity service API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates an identity service client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type provisionRequest struct {
	Email           string   `json:"email"`
	Name            string   `json:"name"`
	Firstname       string   `json:"firstname,omitempty"`
	Lastname        string   `json:"lastname,omitempty"`
	Groups          []string `json:"provider_groups"`
	Organizations   []string `json:"provider_organizations"`
	AutoCreateGroup bool     `json:"auto_create_group"`
}

// Login validates form credentials against the identity service.
func (c *Client) Login(ctx context.Context, username, password string) (*provider.User, error) {
	var user provider.User
	err := c.post(ctx, "/v1/login", loginRequest{Username: username, Password: password}, &user)
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			return nil, provider.ErrInvalidCredentials
		}
		return nil, err
	}
	return &user, nil
}

// ProvisionFromProvider creates or looks up the identity for an external login.
func (c *Client) ProvisionFromProvider(ctx context.Context, input provider.ProvisionInput) (*provider.User, error) {
	var user provider.User
	err := c.post(ctx, "/v1/provision", provisionRequest{
		Email:           input.Email,
		Name:            input.Name,
		Firstname:       input.Firstname,
		Lastname:        input.Lastname,
		Groups:          input.ProviderGroups,
		Organizations:   input.ProviderOrganizations,
		AutoCreateGroup: input.AutoCreateGroup,
	}, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// DeclareCapabilities registers the platform capability list at boot. The
// service upserts, so repeated declarations are harmless.
func (c *Client) DeclareCapabilities(ctx context.Context, caps []capability.Capability) error {
	return c.post(ctx, "/v1/capabilities", caps, nil)
}

// statusError carries the non-2xx response status for callers that map
// specific statuses onto sentinels.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("identity service returned %d: %s", e.status, e.body)
}

func isStatus(err error, status int) bool {
	se, ok := err.(*statusError)
	return ok && se.status == status
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{status: resp.StatusCode, body: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode identity service response: %w", err)
	}
	return nil
}
