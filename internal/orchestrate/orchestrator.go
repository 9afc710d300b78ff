// Package orchestrate fans one generation job out into chunk-scoped calls to
// the generation collaborator, reconciles the outputs, and drives the job's
// state machine.
package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"funnelforge/internal/content"
	"funnelforge/internal/domain"
	"funnelforge/internal/events"
	"funnelforge/internal/jobs"
	"funnelforge/internal/merge"
	"funnelforge/internal/metrics"
	"funnelforge/internal/providers/genai"
)

// DefaultMaxInFlight bounds concurrent chunk calls per job so a single run
// does not overwhelm the generation collaborator's rate limits.
const DefaultMaxInFlight = 3

// Orchestrator runs one generation job end to end: chunk fan-out, merge,
// change detection, version promotion, and job bookkeeping.
type Orchestrator struct {
	gen         genai.Generator
	tracker     *jobs.Tracker
	versions    domain.VersionRepository
	registry    *content.Registry
	publisher   *events.Publisher
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	maxInFlight int
}

// Config wires the orchestrator's collaborators. Publisher and Metrics may
// be nil.
type Config struct {
	Generator   genai.Generator
	Tracker     *jobs.Tracker
	Versions    domain.VersionRepository
	Registry    *content.Registry
	Publisher   *events.Publisher
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
	MaxInFlight int
}

func New(cfg Config) *Orchestrator {
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Orchestrator{
		gen:         cfg.Generator,
		tracker:     cfg.Tracker,
		versions:    cfg.Versions,
		registry:    cfg.Registry,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		maxInFlight: maxInFlight,
	}
}

// Run executes the job's partition plan and updates the job as a side effect
// throughout. Individual chunk failures are tolerated: the job fails only
// when every chunk failed or the merged document covers no fields. A retry
// job (job.Sections non-empty) regenerates only the chunks owning the named
// sections and re-merges over the stored current document.
func (o *Orchestrator) Run(ctx context.Context, job *domain.GenerationJob) (*merge.Result, error) {
	ct, err := o.registry.Type(string(job.Type))
	if err != nil {
		failErr := fmt.Errorf("%w: %q", domain.ErrInvalidContentType, job.Type)
		o.finishFailed(ctx, job, failErr.Error())
		return nil, failErr
	}

	chunks := selectChunks(ct, job.Sections)
	if len(chunks) == 0 {
		o.finishFailed(ctx, job, domain.ErrNothingToRetry.Error())
		return nil, domain.ErrNothingToRetry
	}

	var base content.Document
	if len(job.Sections) > 0 {
		base, err = o.loadCurrentDocument(ctx, job)
		if err != nil {
			o.finishFailed(ctx, job, fmt.Sprintf("load current version: %v", err))
			return nil, err
		}
	}

	bizCtx := map[string]any{}
	if len(job.ContextJSON) > 0 {
		if err := json.Unmarshal(job.ContextJSON, &bizCtx); err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("job context not decodable, generating without it")
			bizCtx = map[string]any{}
		}
	}

	results := o.fanOut(ctx, job, ct, chunks, bizCtx)

	res, err := merge.Merge(ct, results)
	if err != nil {
		// Overlap means the partition plan itself is broken; retrying the
		// job cannot fix it.
		o.finishFailed(ctx, job, err.Error())
		return nil, err
	}

	allFailed := len(res.FailedChunks) == len(chunks)
	if allFailed || len(res.Document) == 0 {
		o.finishFailed(ctx, job, chunkFailureMessage(results))
		return &res, nil
	}

	if len(base) > 0 {
		for name, val := range base {
			if _, ok := res.Document[name]; !ok {
				res.Document[name] = val
			}
		}
		res.Report = ct.Validate(res.Document)
	}

	if err := o.persistDocument(ctx, job, res.Document); err != nil {
		o.finishFailed(ctx, job, fmt.Sprintf("persist content version: %v", err))
		return &res, err
	}

	done, failed := sectionOutcome(ct, chunks, results)
	if err := o.tracker.Complete(ctx, job, done, failed); err != nil {
		return &res, err
	}
	o.metrics.JobFinished(string(job.Type), string(domain.JobStatusCompleted))
	o.publishTerminal(ctx, job)
	return &res, nil
}

// fanOut issues the chunk calls with bounded concurrency and records
// settlement-order progress. A slow chunk never blocks marking the others
// settled.
func (o *Orchestrator) fanOut(ctx context.Context, job *domain.GenerationJob, ct *content.Type, chunks []content.Chunk, bizCtx map[string]any) []merge.ChunkResult {
	results := make([]merge.ChunkResult, len(chunks))

	var mu sync.Mutex
	settled := 0
	var doneSections, failedSections []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxInFlight)
	for i, ch := range chunks {
		g.Go(func() error {
			started := time.Now()
			doc, err := o.gen.GenerateChunk(gctx, genai.ChunkRequest{
				ContentType:  ct.Name,
				ContentLabel: ct.Label,
				ChunkID:      ch.ID,
				Fields:       ct.ChunkSpecs(ch),
				Context:      bizCtx,
			})
			o.metrics.ObserveChunk(string(job.Type), time.Since(started), err != nil)
			results[i] = merge.ChunkResult{Index: i, ChunkID: ch.ID, Fields: doc, Err: err}

			mu.Lock()
			defer mu.Unlock()
			settled++
			if err != nil {
				failedSections = append(failedSections, ch.Fields...)
				o.logger.Warn().Err(err).
					Str("job_id", job.ID).
					Str("chunk_id", ch.ID).
					Msg("chunk generation failed")
			} else {
				doneSections = append(doneSections, doc.FieldNames()...)
			}
			if perr := o.tracker.Progress(ctx, job, settled, len(chunks), ch.ID, doneSections, failedSections); perr != nil {
				o.logger.Error().Err(perr).Str("job_id", job.ID).Msg("progress update failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) loadCurrentDocument(ctx context.Context, job *domain.GenerationJob) (content.Document, error) {
	cur, err := o.versions.Current(ctx, job.ContentGroupID, job.Type)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var doc content.Document
	if err := json.Unmarshal(cur.ContentJSON, &doc); err != nil {
		return nil, fmt.Errorf("decode stored document: %w", err)
	}
	return doc, nil
}

// persistDocument writes the merged document as a new current version unless
// its hash matches the version already stored, in which case the write and
// the version bump are skipped.
func (o *Orchestrator) persistDocument(ctx context.Context, job *domain.GenerationJob, doc content.Document) error {
	hash := content.Hash(doc)
	cur, err := o.versions.Current(ctx, job.ContentGroupID, job.Type)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		o.metrics.VersionWrite("error")
		return err
	}
	if cur != nil && cur.ContentHash == hash {
		o.metrics.VersionWrite("skipped_identical")
		o.logger.Info().
			Str("job_id", job.ID).
			Str("content_group_id", job.ContentGroupID).
			Msg("generated content identical to current version, write skipped")
		return nil
	}
	contentJSON, err := json.Marshal(doc)
	if err != nil {
		o.metrics.VersionWrite("error")
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := o.versions.Promote(ctx, job.ContentGroupID, job.Type, contentJSON, hash); err != nil {
		o.metrics.VersionWrite("error")
		return err
	}
	o.metrics.VersionWrite("written")
	return nil
}

func (o *Orchestrator) finishFailed(ctx context.Context, job *domain.GenerationJob, msg string) {
	if err := o.tracker.Fail(ctx, job, msg); err != nil && !errors.Is(err, domain.ErrJobTerminal) {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("mark job failed")
	}
	o.metrics.JobFinished(string(job.Type), string(domain.JobStatusFailed))
	o.publishTerminal(ctx, job)
}

func (o *Orchestrator) publishTerminal(ctx context.Context, job *domain.GenerationJob) {
	err := o.publisher.Publish(ctx, events.JobEvent{
		JobID:          job.ID,
		UserID:         job.UserID,
		ContentGroupID: job.ContentGroupID,
		JobType:        string(job.Type),
		Status:         string(job.Status),
		Progress:       job.Progress,
		SectionsFailed: job.SectionsFailed,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("job event not published")
	}
}

// selectChunks returns the plan's chunks, restricted to those owning at
// least one of the requested sections when a retry filter is present.
func selectChunks(ct *content.Type, sections []string) []content.Chunk {
	if len(sections) == 0 {
		return ct.Chunks
	}
	wanted := make(map[string]struct{}, len(sections))
	for _, s := range sections {
		wanted[s] = struct{}{}
	}
	var out []content.Chunk
	for _, ch := range ct.Chunks {
		for _, f := range ch.Fields {
			if _, ok := wanted[f]; ok {
				out = append(out, ch)
				break
			}
		}
	}
	return out
}

// sectionOutcome derives the final done/failed section lists: fields
// actually produced by succeeded chunks, and every planned field of each
// failed chunk.
func sectionOutcome(ct *content.Type, chunks []content.Chunk, results []merge.ChunkResult) (done, failed []string) {
	for i, cr := range results {
		if cr.Failed() {
			failed = append(failed, chunks[i].Fields...)
			continue
		}
		for _, name := range chunks[i].Fields {
			if _, ok := cr.Fields[name]; ok {
				done = append(done, name)
			}
		}
	}
	return done, failed
}

func chunkFailureMessage(results []merge.ChunkResult) string {
	for _, cr := range results {
		if cr.Failed() {
			return fmt.Sprintf("all chunks failed; first error (chunk %s): %v", cr.ChunkID, cr.Err)
		}
	}
	return "generation produced no content"
}
