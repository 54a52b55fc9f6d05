package upstream

import (
	"context"
	"fmt"
	"strings"
)

// registryLatestResponse matches the npm registry's package/latest document.
type registryLatestResponse struct {
	Version string `json:"version"`
}

// ResolvePackageManager returns the latest published version of the named
// package manager from its registry (npm registry API shape).
// Resolved once per run, not per target.
func (c *Client) ResolvePackageManager(ctx context.Context, registry, name string) (string, error) {
	url := strings.TrimRight(registry, "/") + "/" + name + "/latest"

	var resp registryLatestResponse
	if err := c.fetchJSON(ctx, url, &resp); err != nil {
		return "", err
	}
	if resp.Version == "" {
		return "", fmt.Errorf("upstream: registry returned empty version for %s", name)
	}
	return resp.Version, nil
}
