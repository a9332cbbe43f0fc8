package clipboard

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/atotto/clipboard"
)

const (
	// maxInputLength bounds what we are willing to inspect from the clipboard.
	maxInputLength = 2048
)

var (
	// ErrClipboardRead indicates an error reading from the clipboard
	ErrClipboardRead = errors.New("failed to read from clipboard")
	// ErrInvalidRepo indicates the clipboard holds neither a repo id nor a repo URL
	ErrInvalidRepo = errors.New("clipboard does not contain a model repository id or URL")
)

var repoSegment = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// readAll is swapped in tests.
var readAll = clipboard.ReadAll

type Validator struct {
	allowedSchemes map[string]bool
	hosts          map[string]bool
}

// NewValidator accepts plain "<namespace>/<name>" ids and http(s) URLs on
// the given hub hosts.
func NewValidator(hubHosts ...string) *Validator {
	hosts := map[string]bool{"huggingface.co": true, "hf.co": true}
	for _, h := range hubHosts {
		if h != "" {
			hosts[strings.ToLower(h)] = true
		}
	}
	return &Validator{
		allowedSchemes: map[string]bool{"http": true, "https": true},
		hosts:          hosts,
	}
}

// ExtractRepoID returns the repository id found in text, or "".
func (v *Validator) ExtractRepoID(text string) string {
	text = strings.TrimSpace(text)

	// Quick reject: empty, too long, or contains newlines
	if text == "" || len(text) > maxInputLength || strings.ContainsAny(text, "\n\r") {
		return ""
	}

	if !strings.Contains(text, "://") {
		return v.repoFromPath(text, false)
	}

	parsed, err := url.Parse(text)
	if err != nil || !v.allowedSchemes[parsed.Scheme] {
		return ""
	}
	if !v.hosts[strings.ToLower(parsed.Hostname())] {
		return ""
	}
	return v.repoFromPath(parsed.Path, true)
}

// repoFromPath takes the first two segments of a hub path such as
// "org/name/tree/main/config.json". Bare text may only carry a tree or blob
// suffix; URL paths may carry anything.
func (v *Validator) repoFromPath(p string, fromURL bool) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	if parts[0] == "models" && len(parts) >= 3 {
		parts = parts[1:]
	}
	if !repoSegment.MatchString(parts[0]) || !repoSegment.MatchString(parts[1]) {
		return ""
	}
	if len(parts) > 2 && !fromURL && parts[2] != "tree" && parts[2] != "blob" {
		return ""
	}
	return parts[0] + "/" + parts[1]
}

// ReadRepoID reads the clipboard and returns a repository id if found.
func ReadRepoID(hubHosts ...string) (string, error) {
	text, err := readAll()
	if err != nil {
		return "", ErrClipboardRead
	}

	repo := NewValidator(hubHosts...).ExtractRepoID(text)
	if repo == "" {
		return "", ErrInvalidRepo
	}
	return repo, nil
}
