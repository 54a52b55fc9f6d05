package upstream

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

// ErrNoRelease is returned when a listing contains no release for the
// requested major version line.
var ErrNoRelease = errors.New("upstream: no matching release")

// anchorRe extracts anchor-link targets from a directory-listing page.
// Release directories link as v<version>/ (e.g. href="v8.12.0/").
var anchorRe = regexp.MustCompile(`<a[^>]*\shref="(v[0-9][^"]*)"`)

// ResolveVersion scrapes the release listing at baseURI and returns the
// greatest full version string for the given major line ("8" → "8.12.0").
// The listing scrape is a compatibility path: the upstream dist server
// exposes no per-major latest endpoint.
func (c *Client) ResolveVersion(ctx context.Context, baseURI, major string) (string, error) {
	data, err := c.fetchBytes(ctx, baseURI)
	if err != nil {
		return "", err
	}
	return latestInListing(string(data), major)
}

// latestInListing picks the numerically greatest version for a major line
// out of a listing document.
func latestInListing(listing, major string) (string, error) {
	prefix := "v" + major + "."

	var best *masterminds.Version
	for _, m := range anchorRe.FindAllStringSubmatch(listing, -1) {
		name := strings.TrimSuffix(m[1], "/")
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		v, err := masterminds.NewVersion(strings.TrimPrefix(name, "v"))
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}

	if best == nil {
		return "", fmt.Errorf("%w for major %s at listing", ErrNoRelease, major)
	}
	return fmt.Sprintf("%d.%d.%d", best.Major(), best.Minor(), best.Patch()), nil
}
