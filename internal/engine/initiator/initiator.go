// Package initiator implements the job submission entrypoint: decode and
// validate the incoming Job, repackage every order, upload archives, seed
// OrderRecords, and emit the job_started event.
package initiator

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/railyard-run/railyard/internal/engine/errkind"
	"github.com/railyard-run/railyard/internal/engine/repackager"
	"github.com/railyard-run/railyard/internal/interfaces"
	"github.com/railyard-run/railyard/internal/models"
	"github.com/railyard-run/railyard/internal/store/objectstore"
)

// ackMarker tags the single status comment Submit upserts per PR, so a
// re-run against the same pull request edits its own comment instead of
// leaving a trail of duplicates.
const ackMarker = "<!-- railyard:status -->"

// SubmitResult is handed back to the caller once a job has been accepted
// and fully seeded into the data plane.
type SubmitResult struct {
	RunID        string `json:"run_id"`
	TraceID      string `json:"trace_id"`
	FlowID       string `json:"flow_id"`
	DoneEndpoint string `json:"done_endpt"`
	SearchTag    string `json:"search_tag"`
}

// Dependencies are the Initiator's external collaborators.
type Dependencies struct {
	Orders     interfaces.OrderStore
	Events     interfaces.OrderEventStore
	Objects    interfaces.ObjectStore
	Repackager *repackager.Repackager
	// VCS is optional: when set and the job carries a PRLink, Submit
	// best-effort posts or updates a status comment acknowledging the run.
	VCS interfaces.CommentCapability
}

// Initiator implements the job submission algorithm.
type Initiator struct {
	deps Dependencies
}

// New constructs an Initiator.
func New(deps Dependencies) *Initiator {
	return &Initiator{deps: deps}
}

// Submit decodes, validates, repackages, and seeds a job from its
// base64(JSON) wire payload.
func (i *Initiator) Submit(ctx context.Context, jobB64 string) (*SubmitResult, error) {
	job, err := models.JobFromBase64(jobB64)
	if err != nil {
		return nil, &errkind.ValidationError{Reason: fmt.Sprintf("decode job_b64: %v", err)}
	}

	if err := Validate(job); err != nil {
		return nil, &errkind.ValidationError{Reason: err.Error()}
	}

	traceID, err := newTraceID()
	if err != nil {
		return nil, fmt.Errorf("generate trace_id: %w", err)
	}
	runID := uuid.NewString()
	flowID := fmt.Sprintf("%s:%s-%s", job.CallerIdentity, traceID, job.ResolveFlowLabel())
	// search_tag is the tag-block marker written into the PR
	// acknowledgement comment; the comment itself is found by ackMarker.
	searchTag := fmt.Sprintf("###%s###", traceID)
	doneEndpoint := objectstore.DoneKey(runID)

	defer i.deps.Repackager.CleanupRun(runID)

	descriptors, err := i.deps.Repackager.Repackage(ctx, job, runID, traceID, flowID)
	if err != nil {
		return nil, fmt.Errorf("repackage job: %w", err)
	}

	now := time.Now().Unix()

	for idx, d := range descriptors {
		order := &job.Orders[idx]

		archiveKey := objectstore.ArchiveKey(runID, d.OrderNum)
		if err := i.uploadArchive(ctx, d.LocalArchive, archiveKey); err != nil {
			return nil, fmt.Errorf("order %s: upload archive: %w", d.OrderNum, err)
		}

		rec := &models.OrderRecord{
			RunID:           runID,
			OrderNum:        d.OrderNum,
			TraceID:         traceID,
			FlowID:          flowID,
			OrderName:       d.OrderName,
			QueueID:         d.QueueID,
			Status:          models.OrderStatusQueued,
			Cmds:            order.Cmds,
			Dependencies:    order.Dependencies,
			MustSucceed:     order.ResolveMustSucceed(),
			Timeout:         order.Timeout,
			ExecutionTarget: order.ResolveExecutionTarget(),
			SSMTargets:      order.SSMTargets,
			ArchivePath:     archiveKey,
			CallbackURL:     d.CallbackURL,
			SopsKeyRef:      d.SopsKeyRef,
			CreatedAt:       now,
			LastUpdate:      now,
			TTL:             models.NewTTL(now),
		}

		if err := i.deps.Orders.PutOrder(ctx, rec); err != nil {
			return nil, fmt.Errorf("order %s: put record: %w", d.OrderNum, err)
		}
	}

	jobStartedEvent := &models.OrderEvent{
		TraceID:    traceID,
		SK:         models.NewEventSK(models.JobEventOrderName, time.Now().UnixNano()),
		RunID:      runID,
		OrderName:  models.JobEventOrderName,
		EventType:  models.EventTypeJobStarted,
		EpochNanos: time.Now().UnixNano(),
	}
	if err := i.deps.Events.AppendEvent(ctx, jobStartedEvent); err != nil {
		return nil, fmt.Errorf("append job_started event: %w", err)
	}

	if err := i.writeInitTrigger(ctx, runID, traceID, flowID); err != nil {
		return nil, fmt.Errorf("write init trigger: %w", err)
	}

	if job.PRLink != "" && i.deps.VCS != nil {
		// Best-effort: a VCS hiccup must not fail a job that has already
		// been fully seeded into the data plane.
		_ = i.acknowledgePR(ctx, job.PRLink, searchTag)
	}

	return &SubmitResult{
		RunID:        runID,
		TraceID:      traceID,
		FlowID:       flowID,
		DoneEndpoint: doneEndpoint,
		SearchTag:    searchTag,
	}, nil
}

func (i *Initiator) uploadArchive(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat local archive: %w", err)
	}

	return i.deps.Objects.Put(ctx, key, f, info.Size())
}

// initTrigger is the body of the order-0000 callback object whose creation
// triggers the Controller's first evaluation pass for a run; the
// Controller takes the run id from the object key and does not read the
// body.
type initTrigger struct {
	RunID   string `json:"run_id"`
	TraceID string `json:"trace_id"`
	FlowID  string `json:"flow_id"`
}

func (i *Initiator) writeInitTrigger(ctx context.Context, runID, traceID, flowID string) error {
	payload, err := json.Marshal(initTrigger{RunID: runID, TraceID: traceID, FlowID: flowID})
	if err != nil {
		return fmt.Errorf("marshal init trigger: %w", err)
	}
	key := objectstore.CallbackKey(runID, objectstore.InitTriggerOrderNum)
	return i.deps.Objects.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)))
}

// acknowledgePR posts or updates the single railyard status comment on
// prLink, identified by ackMarker: one comment per PR, re-run after re-run.
func (i *Initiator) acknowledgePR(ctx context.Context, prLink, searchTag string) error {
	body := fmt.Sprintf("%s\nRailyard run started. Tracking tag: %s\n", ackMarker, searchTag)

	comments, err := i.deps.VCS.ListComments(ctx, prLink)
	if err != nil {
		return fmt.Errorf("list pr comments: %w", err)
	}
	for _, c := range comments {
		if strings.Contains(c.Body, ackMarker) {
			return i.deps.VCS.UpdateComment(ctx, prLink, c.ID, body)
		}
	}
	return i.deps.VCS.CreateComment(ctx, prLink, body)
}

// newTraceID generates the spec's 8-hex-character trace identifier.
func newTraceID() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
