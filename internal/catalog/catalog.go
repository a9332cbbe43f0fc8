// Package catalog lists the files of a hub model repository.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/vfaronov/httpheader"

	"hf_downloader/greenhttp"
	"hf_downloader/internal/download/types"
	"hf_downloader/internal/utils"
)

const maxPages = 1000

var (
	ErrRepoNotFound = errors.New("repository not found")
	// ErrUnauthorized usually means a gated or private repository; set HF_TOKEN.
	ErrUnauthorized = errors.New("repository requires authentication")
)

// Entry is one item of the repository tree.
type Entry struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	OID  string `json:"oid"`
	LFS  *struct {
		Size int64 `json:"size"`
	} `json:"lfs,omitempty"`
}

// IsFile reports whether the entry is a regular file rather than a directory.
func (e Entry) IsFile() bool { return e.Type == "file" }

// ByteSize prefers the LFS object size, which is the real download size.
func (e Entry) ByteSize() int64 {
	if e.LFS != nil && e.LFS.Size > 0 {
		return e.LFS.Size
	}
	return e.Size
}

// Client queries the hub tree API.
type Client struct {
	http     *greenhttp.HTTPClient
	endpoint string
	revision string
	token    string
}

func NewClient(cfg *types.TransferConfig, httpClient *greenhttp.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = greenhttp.NewHTTPClient(greenhttp.ProtocolAuto)
	}
	c := &Client{
		http:     httpClient,
		endpoint: strings.TrimRight(cfg.GetEndpoint(), "/"),
		revision: cfg.GetRevision(),
	}
	if cfg != nil {
		c.token = cfg.Token
	}
	return c
}

// TreeURL is the first page of the recursive listing for repoID.
func (c *Client) TreeURL(repoID string) string {
	return fmt.Sprintf("%s/api/models/%s/tree/%s?recursive=true",
		c.endpoint, strings.Trim(repoID, "/"), url.PathEscape(c.revision))
}

// ListFiles returns every file of repoID sorted by path, following
// rel="next" Link headers across pages.
func (c *Client) ListFiles(ctx context.Context, repoID string) ([]Entry, error) {
	if strings.Trim(repoID, "/ ") == "" {
		return nil, &types.ConfigurationError{Field: "repo_id", Reason: "repository id is required"}
	}

	headers := map[string]string{"Accept": "application/json"}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	var files []Entry
	next := c.TreeURL(repoID)
	seen := map[string]bool{}
	for page := 0; next != ""; page++ {
		if page >= maxPages || seen[next] {
			return nil, fmt.Errorf("listing %s: pagination did not terminate", repoID)
		}
		seen[next] = true

		entries, link, err := c.fetchPage(ctx, repoID, next, headers)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsFile() {
				files = append(files, e)
			}
		}
		next = link
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	utils.Debug("catalog: %s has %d files", repoID, len(files))
	return files, nil
}

func (c *Client) fetchPage(ctx context.Context, repoID, pageURL string, headers map[string]string) ([]Entry, string, error) {
	resp, err := c.http.Do(ctx, http.MethodGet, pageURL, headers)
	if err != nil {
		return nil, "", fmt.Errorf("listing %s: %w", repoID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, "", fmt.Errorf("%s: %w", repoID, ErrRepoNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, "", fmt.Errorf("%s: %w", repoID, ErrUnauthorized)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("listing %s: unexpected status %s: %s", repoID, resp.Status, strings.TrimSpace(string(snippet)))
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, "", fmt.Errorf("listing %s: decode: %w", repoID, err)
	}

	base := resp.Request.URL
	for _, link := range httpheader.Link(resp.Header, base) {
		if link.Rel == "next" {
			return entries, link.Target.String(), nil
		}
	}
	return entries, "", nil
}

// Filter keeps entries matching any include glob (all when include is
// empty) and no exclude glob. A glob matches the full path or the base name.
func Filter(entries []Entry, include, exclude []string) []Entry {
	var out []Entry
	for _, e := range entries {
		if len(include) > 0 && !matchAny(include, e.Path) {
			continue
		}
		if matchAny(exclude, e.Path) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchAny(globs []string, p string) bool {
	for _, g := range globs {
		if ok, _ := path.Match(g, p); ok {
			return true
		}
		if ok, _ := path.Match(g, path.Base(p)); ok {
			return true
		}
	}
	return false
}

// Paths extracts the relative paths, preserving order.
func Paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

// TotalSize sums ByteSize over entries.
func TotalSize(entries []Entry) int64 {
	var n int64
	for _, e := range entries {
		n += e.ByteSize()
	}
	return n
}
