package weights

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// DefaultAPIBaseURL is the GitHub REST API base used to list releases.
const DefaultAPIBaseURL = "https://api.github.com"

// HTTPClient is the subset of *http.Client used by the release client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// release is a published release as returned by the hosting platform.
// Releases are listed newest-first.
type release struct {
	TagName string         `json:"tag_name"`
	Assets  []releaseAsset `json:"assets"`
}

// releaseAsset is a binary artifact attached to a release.
type releaseAsset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

// releaseClient reads a repository's published releases and their assets.
// Public read only; no authentication.
type releaseClient struct {
	baseURL    string
	httpClient HTTPClient
}

// newReleaseClient creates a release client. An empty baseURL uses
// DefaultAPIBaseURL; trailing slashes are stripped.
func newReleaseClient(baseURL string, client HTTPClient) *releaseClient {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &releaseClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// listReleases fetches all published releases of "owner/repo".
func (c *releaseClient) listReleases(ctx context.Context, repository string) ([]release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases", c.baseURL, repository)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: listing releases for %s: %v", ErrNetwork, repository, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: listing releases for %s: %s", ErrNetwork, repository, resp.Status)
	}

	var releases []release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("%w: parsing release list: %v", ErrNetwork, err)
	}

	return releases, nil
}

// resolveAsset finds the download URL of the asset named assetName across
// all published releases. Releases are scanned in the order the platform
// returns them (newest first); the first match wins. Returns
// ErrAssetNotFound when no asset matches.
func (c *releaseClient) resolveAsset(ctx context.Context, repository, assetName string) (string, error) {
	releases, err := c.listReleases(ctx, repository)
	if err != nil {
		return "", err
	}

	for _, rel := range releases {
		for _, asset := range rel.Assets {
			if asset.Name == assetName {
				return asset.DownloadURL, nil
			}
		}
	}

	return "", fmt.Errorf("%w: %s in %s", ErrAssetNotFound, assetName, repository)
}
