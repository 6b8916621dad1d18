package repackager

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	gitplumb "github.com/go-git/go-git/v5/plumbing"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// cloneOnce clones repo (optionally pinned to commit) into destDir exactly
// once, trying HTTPS-with-token, then SSH-with-key, then unauthenticated
// HTTPS, in that order.
func (r *Repackager) cloneOnce(ctx context.Context, repo, commit, token, sshKeyPath, destDir string) error {
	depth := r.deps.CloneDepth
	if depth <= 0 {
		depth = 1
	}
	if commit != "" {
		depth = 2
	}

	ctx, cancel := context.WithTimeout(ctx, r.deps.CloneTimeout)
	defer cancel()

	var lastErr error

	if token != "" {
		if err := plainClone(ctx, repo, destDir, depth, githttp.BasicAuth{Username: "x-access-token", Password: token}); err == nil {
			return checkoutPin(destDir, commit)
		} else {
			lastErr = fmt.Errorf("https-with-token clone failed: %w", err)
		}
	}

	if sshKeyPath != "" {
		auth, err := gitssh.NewPublicKeysFromFile("git", sshKeyPath, "")
		if err == nil {
			if err := plainClone(ctx, toSSHURL(repo), destDir, depth, auth); err == nil {
				return checkoutPin(destDir, commit)
			} else {
				lastErr = fmt.Errorf("ssh-with-key clone failed: %w", err)
			}
		} else {
			lastErr = fmt.Errorf("load ssh key: %w", err)
		}
	}

	if err := plainClone(ctx, repo, destDir, depth, nil); err != nil {
		if lastErr != nil {
			return fmt.Errorf("%v; unauthenticated fallback also failed: %w", lastErr, err)
		}
		return fmt.Errorf("unauthenticated clone failed: %w", err)
	}
	return checkoutPin(destDir, commit)
}

func plainClone(ctx context.Context, url, destDir string, depth int, auth gittransport.AuthMethod) error {
	_, err := git.PlainCloneContext(ctx, destDir, false, &git.CloneOptions{
		URL:   url,
		Depth: depth,
		Auth:  auth,
	})
	return err
}

func checkoutPin(destDir, commit string) error {
	if commit == "" {
		return nil
	}
	repo, err := git.PlainOpen(destDir)
	if err != nil {
		return fmt.Errorf("open cloned repo: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: gitplumb.NewHash(commit)}); err != nil {
		return fmt.Errorf("checkout commit %s: %w", commit, err)
	}
	return nil
}

// toSSHURL converts an https:// repo URL to the git@host:path SSH form.
func toSSHURL(httpsURL string) string {
	trimmed := strings.TrimPrefix(httpsURL, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 {
		return httpsURL
	}
	return fmt.Sprintf("git@%s:%s", parts[0], parts[1])
}

// copyTreeExcludingGit copies srcDir into dstDir, skipping any ".git"
// subdirectory, used once per order sharing a cloned repo.
func copyTreeExcludingGit(srcDir, dstDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}

		target := filepath.Join(dstDir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// copyFromObjectStore downloads and extracts an s3_location code source
// into dstDir. location is used as the object key, and the object is
// extracted as a zip archive (the format archive.go produces); other
// archive formats such as tar are not handled.
func (r *Repackager) copyFromObjectStore(ctx context.Context, location string, dstDir string) error {
	data, err := r.deps.Objects.Get(ctx, location)
	if err != nil {
		return fmt.Errorf("fetch s3 source %s: %w", location, err)
	}
	return extractZip(data, dstDir)
}
