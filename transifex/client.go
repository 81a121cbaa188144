// Package transifex downloads translations from the Transifex API.
package transifex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://www.transifex.com"

// Resource identifies a Transifex resource within a project.
type Resource struct {
	ProjectSlug  string
	ResourceSlug string
}

type ResourceDetails struct {
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	I18nType       string `json:"i18n_type"`
	SourceLanguage string `json:"source_language_code"`
}

type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) GetResource(ctx context.Context, resource Resource) (*ResourceDetails, error) {
	var details ResourceDetails
	if err := c.get(ctx, c.resourcePath(resource)+"/", &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// Download returns the raw translation file of resource for language.
func (c *Client) Download(ctx context.Context, resource Resource, language string) ([]byte, error) {
	if _, err := c.GetResource(ctx, resource); err != nil {
		return nil, err
	}
	var translation struct {
		Content string `json:"content"`
	}
	path := c.resourcePath(resource) + "/translation/" + url.PathEscape(language) + "/"
	if err := c.get(ctx, path, &translation); err != nil {
		return nil, err
	}
	return []byte(translation.Content), nil
}

func (c *Client) resourcePath(resource Resource) string {
	return "/api/2/project/" + url.PathEscape(resource.ProjectSlug) +
		"/resource/" + url.PathEscape(resource.ResourceSlug)
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transifex: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("transifex: failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("transifex: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("transifex: failed to decode response: %w", err)
	}
	return nil
}
