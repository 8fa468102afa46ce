// Package version checks Modrinth for a newer published build.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Release struct {
	VersionNumber string    `json:"version_number"`
	GameVersions  []string  `json:"game_versions"`
	Loaders       []string  `json:"loaders"`
	DatePublished time.Time `json:"date_published"`
}

type Checker struct {
	url         string
	gameVersion string
	loader      string
	client      *http.Client
}

func NewChecker(url, gameVersion, loader string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Checker{
		url:         url,
		gameVersion: gameVersion,
		loader:      loader,
		client:      &http.Client{Timeout: timeout},
	}
}

// Latest returns the newest compatible release, or nil when none is
// published for the configured game version and loader.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("version check: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var releases []Release
	if err := json.Unmarshal(body, &releases); err != nil {
		return nil, fmt.Errorf("version check: %w", err)
	}
	var best *Release
	for i := range releases {
		r := &releases[i]
		if !r.compatible(c.gameVersion, c.loader) {
			continue
		}
		if best == nil || r.DatePublished.After(best.DatePublished) {
			best = r
		}
	}
	return best, nil
}

// Outdated reports whether a newer release than current exists.
func (c *Checker) Outdated(ctx context.Context, current string) (bool, *Release, error) {
	latest, err := c.Latest(ctx)
	if err != nil {
		return false, nil, err
	}
	if latest == nil {
		return false, nil, nil
	}
	if normalize(latest.VersionNumber) == normalize(current) {
		return false, latest, nil
	}
	return true, latest, nil
}

func (r *Release) compatible(gameVersion, loader string) bool {
	if gameVersion != "" && !contains(r.GameVersions, gameVersion) {
		return false
	}
	if loader != "" && !contains(r.Loaders, loader) {
		return false
	}
	return true
}

func contains(xs []string, want string) bool {
	for _, x := range xs {
		if strings.EqualFold(x, want) {
			return true
		}
	}
	return false
}

func normalize(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}
