// Package gitsource keeps local checkouts of deck repositories.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// IsURL reports whether path looks like a git remote rather than a local
// directory.
func IsURL(path string) bool {
	if strings.HasSuffix(path, ".git") {
		return true
	}
	u, err := url.Parse(path)
	return err == nil && (u.Scheme == "https" || u.Scheme == "http" || u.Scheme == "ssh")
}

// LocalPath maps a repository URL to its checkout directory under baseDir.
// Both https://host/owner/repo.git and git@host:owner/repo.git are accepted.
func LocalPath(baseDir, repoURL string) (string, error) {
	u, err := url.Parse(repoURL)
	if err == nil && (u.Scheme == "https" || u.Scheme == "http" || u.Scheme == "ssh") && u.Host != "" {
		return filepath.Join(baseDir, u.Hostname(), strings.TrimSuffix(u.Path, ".git")), nil
	}

	userHost, repoPath, ok := strings.Cut(repoURL, ":")
	if ok {
		if _, host, ok := strings.Cut(userHost, "@"); ok && host != "" && repoPath != "" {
			return filepath.Join(baseDir, host, strings.TrimSuffix(repoPath, ".git")), nil
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}

// Sync clones the repository at url into localPath, or pulls the latest
// changes when a checkout already exists.
func Sync(ctx context.Context, url, localPath string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	_, err := os.Stat(localPath)
	switch {
	case os.IsNotExist(err):
		logger.Info("Cloning deck repository", "url", url, "path", localPath)
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{URL: url})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", url, err)
		}
	case err == nil:
		logger.Info("Pulling deck repository", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}
	return nil
}
