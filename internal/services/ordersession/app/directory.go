package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/louisbranch/lunchroll/internal/services/ordersession/domain"
)

// directoryClient resolves display names and company rosters from the
// external directory service. Both lookups are best-effort collaborators; the
// domain layer degrades on failure.
type directoryClient struct {
	baseURL    string
	httpClient *http.Client
}

func newDirectoryClient(baseURL string) *directoryClient {
	return &directoryClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type directoryUserResponse struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type directoryMembersResponse struct {
	Members []directoryUserResponse `json:"members"`
}

// ResolveDisplayName fetches one user's display name.
func (c *directoryClient) ResolveDisplayName(ctx context.Context, userID string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", domain.ErrLookupFailed
	}
	var user directoryUserResponse
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(userID), &user); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrLookupFailed, err)
	}
	return user.DisplayName, nil
}

// ListMembers fetches the company roster.
func (c *directoryClient) ListMembers(ctx context.Context, companyID string) ([]domain.Member, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("%w: directory is not configured", domain.ErrLookupFailed)
	}
	var response directoryMembersResponse
	if err := c.getJSON(ctx, "/companies/"+url.PathEscape(companyID)+"/members", &response); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLookupFailed, err)
	}
	members := make([]domain.Member, 0, len(response.Members))
	for _, member := range response.Members {
		members = append(members, domain.Member{
			UserID:      member.UserID,
			DisplayName: member.DisplayName,
		})
	}
	return members, nil
}

func (c *directoryClient) getJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build directory request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call directory: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode directory response: %w", err)
	}
	return nil
}
