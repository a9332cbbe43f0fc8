package types

import (
	"path"
	"strings"
)

// FileSetRequest describes one download run: which files of which repository
// go where, and how fast.
type FileSetRequest struct {
	RepoID          string     `json:"repo_id"`
	DestinationRoot string     `json:"destination_root"`
	Files           []string   `json:"files"`
	SpeedLimit      SpeedLimit `json:"-"`
}

// DeriveSubdir returns the directory name a repository is stored under: the
// last non-empty path segment of its id ("org/model" -> "model").
func DeriveSubdir(repoID string) string {
	trimmed := strings.Trim(strings.TrimSpace(repoID), "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}

// Validate checks everything that can be checked before a session exists.
// An empty selection is a configuration error at this level.
func (r FileSetRequest) Validate() error {
	if err := r.ValidateTarget(); err != nil {
		return err
	}
	if len(r.Files) == 0 {
		return &ConfigurationError{Field: "files", Reason: "no files selected"}
	}
	return ValidateFiles(r.Files)
}

// ValidateTarget checks the repository id and destination only.
func (r FileSetRequest) ValidateTarget() error {
	repo := strings.TrimSpace(r.RepoID)
	if repo == "" {
		return &ConfigurationError{Field: "repo_id", Reason: "repository id is required"}
	}
	if sub := DeriveSubdir(repo); sub == "" || sub == "." || sub == ".." {
		return &ConfigurationError{Field: "repo_id", Reason: "cannot derive a directory name from " + repo}
	}
	if strings.TrimSpace(r.DestinationRoot) == "" {
		return &ConfigurationError{Field: "destination_root", Reason: "destination directory is required"}
	}
	return nil
}

// ValidateFiles rejects empty, absolute, escaping and duplicate paths.
func ValidateFiles(files []string) error {
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if err := validateRelativePath(f); err != nil {
			return err
		}
		if _, dup := seen[f]; dup {
			return &ConfigurationError{Field: "files", Reason: "duplicate file " + f}
		}
		seen[f] = struct{}{}
	}
	return nil
}

func validateRelativePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return &ConfigurationError{Field: "files", Reason: "empty file path"}
	}
	slashed := strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(slashed, "/") || (len(slashed) > 1 && slashed[1] == ':') {
		return &ConfigurationError{Field: "files", Reason: "absolute path " + p}
	}
	for _, seg := range strings.Split(path.Clean(slashed), "/") {
		if seg == ".." {
			return &ConfigurationError{Field: "files", Reason: "path escapes destination: " + p}
		}
	}
	return nil
}
