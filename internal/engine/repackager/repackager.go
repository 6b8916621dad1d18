// Package repackager implements the initiator's bundling sub-pipeline:
// group orders by (repo, commit), clone once per group, copy into isolated
// per-order directories, fetch credentials, assemble and seal the env, and
// archive each order for dispatch.
package repackager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/railyard-run/railyard/internal/crypto"
	"github.com/railyard-run/railyard/internal/interfaces"
	"github.com/railyard-run/railyard/internal/models"
)

// Descriptor is one order's repackaged output, handed back to the initiator
// for upload and record creation.
type Descriptor struct {
	OrderNum     string
	OrderName    string
	QueueID      string
	LocalArchive string // local filesystem path to the built zip, pending upload
	CallbackURL  string
	CodeDir      string
	SopsKeyRef   string // secret-store path, only set when a keypair was auto-generated
}

// Dependencies are the Repackager's external collaborators.
type Dependencies struct {
	Credentials  interfaces.GitCredentialSource
	Params       interfaces.ParameterStore
	Secrets      interfaces.SecretStore
	Objects      interfaces.ObjectStore
	CallbackTTL  time.Duration
	WorkDir      string
	CloneDepth   int
	CloneTimeout time.Duration
	SopsKeyPrefix string
	SopsKeyTTL    time.Duration
}

// Repackager implements the §4.2 algorithm.
type Repackager struct {
	deps Dependencies
}

// New constructs a Repackager.
func New(deps Dependencies) *Repackager {
	return &Repackager{deps: deps}
}

// CleanupRun removes a run's scratch work directory. The caller is
// responsible for invoking this once every Descriptor.LocalArchive
// Repackage returned has been uploaded; Repackage itself cannot delete
// its own work directory on return without deleting those archives out
// from under the caller first.
func (r *Repackager) CleanupRun(runID string) {
	os.RemoveAll(filepath.Join(r.deps.WorkDir, runID))
}

// gitBucketKey identifies a unique (repo, commit) clone group.
type gitBucketKey struct {
	repo   string
	commit string
}

// Repackage runs the full bundling pipeline for every order in job and
// returns one Descriptor per order, in input order.
func (r *Repackager) Repackage(ctx context.Context, job *models.Job, runID, traceID, flowID string) ([]Descriptor, error) {
	runDir := filepath.Join(r.deps.WorkDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run work dir: %w", err)
	}

	token, sshKeyPath, cleanupCreds, err := r.resolveCredentials(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("resolve git credentials: %w", err)
	}
	defer cleanupCreds()

	buckets := map[gitBucketKey]string{} // bucket -> cloned dir
	descriptors := make([]Descriptor, len(job.Orders))

	for i := range job.Orders {
		order := &job.Orders[i]
		orderNum := models.OrderNum(i + 1)
		orderName := order.OrderName
		if orderName == "" {
			orderName = orderNum
		}
		queueID := order.ResolveQueueID(i)

		codeDir := filepath.Join(runDir, orderNum, "code")
		if err := os.MkdirAll(codeDir, 0o755); err != nil {
			return nil, fmt.Errorf("create order %s code dir: %w", orderNum, err)
		}

		switch {
		case order.S3Location != "":
			if err := r.copyFromObjectStore(ctx, order.S3Location, codeDir); err != nil {
				return nil, fmt.Errorf("order %s: fetch object-store source: %w", orderNum, err)
			}
		case order.ResolveGitRepo(job) != "":
			repo := order.ResolveGitRepo(job)
			commit := order.ResolveCommitHash(job)
			key := gitBucketKey{repo: repo, commit: commit}

			cloneDir, ok := buckets[key]
			if !ok {
				cloneDir = filepath.Join(runDir, "_clones", fmt.Sprintf("%d", len(buckets)))
				if err := r.cloneOnce(ctx, repo, commit, token, sshKeyPath, cloneDir); err != nil {
					return nil, fmt.Errorf("clone %s@%s: %w", repo, commit, err)
				}
				buckets[key] = cloneDir
			}

			srcDir := cloneDir
			if order.GitFolder != "" {
				srcDir = filepath.Join(cloneDir, order.GitFolder)
			}
			if err := copyTreeExcludingGit(srcDir, codeDir); err != nil {
				return nil, fmt.Errorf("order %s: copy source tree: %w", orderNum, err)
			}
		default:
			// No code source: permitted only on the agent back-end path.
			// codeDir is left empty.
		}

		env, srcKeys, err := r.assembleEnv(ctx, order, traceID, runID, orderNum, flowID)
		if err != nil {
			return nil, fmt.Errorf("order %s: assemble env: %w", orderNum, err)
		}

		callbackKey := fmt.Sprintf("tmp/callbacks/runs/%s/%s/result.json", runID, orderNum)
		callbackURL, err := r.deps.Objects.PresignPut(ctx, callbackKey, r.deps.CallbackTTL)
		if err != nil {
			return nil, fmt.Errorf("order %s: presign callback: %w", orderNum, err)
		}
		env["CALLBACK_URL"] = callbackURL

		recipientPub, sopsKeyRef, err := r.resolveOrGenerateRecipient(ctx, order, runID, orderNum)
		if err != nil {
			return nil, fmt.Errorf("order %s: resolve envelope recipient: %w", orderNum, err)
		}

		if err := writeEnvArtifacts(codeDir, env, srcKeys, recipientPub, order.ResolveExecutionTarget()); err != nil {
			return nil, fmt.Errorf("order %s: write env artifacts: %w", orderNum, err)
		}

		if order.ResolveExecutionTarget() == models.ExecutionTargetAgent {
			if err := writeCmdsManifest(codeDir, order.Cmds); err != nil {
				return nil, fmt.Errorf("order %s: write cmds.json: %w", orderNum, err)
			}
		}

		archivePath := filepath.Join(runDir, orderNum, "exec.zip")
		if err := archiveDir(codeDir, archivePath); err != nil {
			return nil, fmt.Errorf("order %s: archive: %w", orderNum, err)
		}

		descriptors[i] = Descriptor{
			OrderNum:     orderNum,
			OrderName:    orderName,
			QueueID:      queueID,
			LocalArchive: archivePath,
			CallbackURL:  callbackURL,
			CodeDir:      codeDir,
			SopsKeyRef:   sopsKeyRef,
		}
	}

	for _, dir := range buckets {
		os.RemoveAll(dir)
	}

	return descriptors, nil
}

// resolveCredentials resolves the job-level git token and optional SSH key
// once, writing the SSH key to a process-local 0600 file.
func (r *Repackager) resolveCredentials(ctx context.Context, job *models.Job) (token, sshKeyPath string, cleanup func(), err error) {
	cleanup = func() {}

	if job.GitTokenRef != "" {
		token, err = r.deps.Credentials.ResolveToken(ctx, job.GitTokenRef)
		if err != nil {
			return "", "", cleanup, fmt.Errorf("resolve git token: %w", err)
		}
	}

	if job.GitSSHKeyRef != "" {
		keyMaterial, err := r.deps.Credentials.ResolveSSHKey(ctx, job.GitSSHKeyRef)
		if err != nil {
			return "", "", cleanup, fmt.Errorf("resolve git ssh key: %w", err)
		}
		keyPath := filepath.Join(os.TempDir(), fmt.Sprintf("railyard-sshkey-%s", uuid.NewString()))
		if err := os.WriteFile(keyPath, []byte(keyMaterial), 0o600); err != nil {
			return "", "", cleanup, fmt.Errorf("write ssh key file: %w", err)
		}
		sshKeyPath = keyPath
		cleanup = func() { os.Remove(keyPath) }
	}

	return token, sshKeyPath, cleanup, nil
}

// resolveOrGenerateRecipient returns the order's sealed-box recipient
// public key, generating and persisting a fresh keypair when the order did
// not supply sops_key.
func (r *Repackager) resolveOrGenerateRecipient(ctx context.Context, order *models.Order, runID, orderNum string) (recipientPub [32]byte, sopsKeyRef string, err error) {
	if order.SopsKey != "" {
		pub, decodeErr := decodeRecipientKey(order.SopsKey)
		if decodeErr != nil {
			return recipientPub, "", fmt.Errorf("decode sops_key: %w", decodeErr)
		}
		return pub, "", nil
	}

	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		return recipientPub, "", fmt.Errorf("generate envelope keypair: %w", err)
	}

	ref := fmt.Sprintf("%s/%s/%s", r.deps.SopsKeyPrefix, runID, orderNum)
	if err := r.deps.Secrets.PutSecretWithTTL(ctx, ref, encodeKey(priv), r.deps.SopsKeyTTL); err != nil {
		return recipientPub, "", fmt.Errorf("persist envelope private key: %w", err)
	}

	return pub, ref, nil
}
