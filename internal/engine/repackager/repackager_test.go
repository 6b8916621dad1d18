package repackager

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railyard-run/railyard/internal/models"
)

// fakeObjectStore satisfies interfaces.ObjectStore with stateless stubs
// (nothing is stored), enough for Repackage's PresignPut/Get calls.
type fakeObjectStore struct{}

func (fakeObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	return nil
}
func (fakeObjectStore) Get(ctx context.Context, key string) ([]byte, error) { return nil, nil }
func (fakeObjectStore) Exists(ctx context.Context, key string) (bool, error) { return false, nil }
func (fakeObjectStore) PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://example.invalid/" + key, nil
}

type fakeSecretStore struct{}

func (fakeSecretStore) GetSecret(ctx context.Context, path string) (string, error) { return "", nil }
func (fakeSecretStore) PutSecretWithTTL(ctx context.Context, path, value string, ttl time.Duration) error {
	return nil
}

type fakeParamStore struct{}

func (fakeParamStore) GetParameter(ctx context.Context, path string) (string, error) { return "", nil }

type fakeGitCredentials struct{}

func (fakeGitCredentials) ResolveToken(ctx context.Context, ref string) (string, error) {
	return "", nil
}
func (fakeGitCredentials) ResolveSSHKey(ctx context.Context, ref string) (string, error) {
	return "", nil
}

// newLocalRepo creates a throwaway git repository on the local filesystem
// with one committed file, returning its path for use as a clone source.
func newLocalRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.sh"), []byte("#!/bin/sh\necho hi\n"), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("main.sh")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "railyard-test",
			Email: "test@railyard.invalid",
			When:  time.Now(),
		},
	})
	require.NoError(t, err)

	return dir
}

func TestRepackage_ClonesSharedRepoOnce(t *testing.T) {
	repoDir := newLocalRepo(t)
	workDir := t.TempDir()

	r := New(Dependencies{
		Credentials:   fakeGitCredentials{},
		Params:        fakeParamStore{},
		Secrets:       fakeSecretStore{},
		Objects:       fakeObjectStore{},
		CallbackTTL:   time.Hour,
		WorkDir:       workDir,
		CloneDepth:    1,
		CloneTimeout:  30 * time.Second,
		SopsKeyPrefix: "/railyard/sops-keys",
		SopsKeyTTL:    time.Hour,
	})

	job := &models.Job{
		CallerIdentity: "tester",
		GitRepo:        repoDir,
		Orders: []models.Order{
			{Cmds: []string{"./main.sh"}, OrderName: "first", ExecutionTarget: models.ExecutionTargetBuild},
			{Cmds: []string{"./main.sh"}, OrderName: "second", ExecutionTarget: models.ExecutionTargetBuild},
		},
	}

	descriptors, err := r.Repackage(context.Background(), job, "run-shared", "trace-1", "flow-1")
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	for _, d := range descriptors {
		assert.FileExists(t, d.LocalArchive)
		codeMainSh := filepath.Join(d.CodeDir, "main.sh")
		assert.FileExists(t, codeMainSh)
	}

	// Both orders' code trees come from the same (repo, commit) clone
	// group — gitBucketKey dedup in Repackage means the second order
	// never triggers its own clone — but each order's own codeDir is an
	// independent copy.
	assert.NotEqual(t, descriptors[0].CodeDir, descriptors[1].CodeDir)
	first, err := os.ReadFile(filepath.Join(descriptors[0].CodeDir, "main.sh"))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(descriptors[1].CodeDir, "main.sh"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// The clone scratch directory is reclaimed once every order has
	// copied out of it, before Repackage returns.
	_, err = os.Stat(filepath.Join(workDir, "run-shared", "_clones", "0"))
	assert.True(t, os.IsNotExist(err))
}
