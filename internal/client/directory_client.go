package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/officeflow/be-oa-approvals/internal/service"
)

// DirectoryClient looks up users in the platform directory service. It
// implements service.Directory.
type DirectoryClient struct {
	baseURL string
	http    *http.Client
}

// NewDirectoryClient creates a new directory service client.
func NewDirectoryClient(baseURL string, timeout time.Duration) *DirectoryClient {
	return &DirectoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type directoryUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type listUsersResponse struct {
	Users []directoryUser `json:"users"`
}

// UsersWithRole returns every user holding the given role.
func (c *DirectoryClient) UsersWithRole(ctx context.Context, role string) ([]service.User, error) {
	path := "/api/v1/users?role=" + url.QueryEscape(role)

	var resp listUsersResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to list users with role %s: %w", role, err)
	}
	return toServiceUsers(resp.Users), nil
}

// Users resolves the given user IDs. Unknown IDs are silently absent from the
// result.
func (c *DirectoryClient) Users(ctx context.Context, ids []string) ([]service.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	path := "/api/v1/users?ids=" + url.QueryEscape(strings.Join(ids, ","))

	var resp listUsersResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to resolve users: %w", err)
	}
	return toServiceUsers(resp.Users), nil
}

func (c *DirectoryClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("directory service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func toServiceUsers(users []directoryUser) []service.User {
	out := make([]service.User, 0, len(users))
	for _, u := range users {
		out = append(out, service.User{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	return out
}
