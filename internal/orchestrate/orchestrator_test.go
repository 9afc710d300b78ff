package orchestrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelforge/internal/content"
	"funnelforge/internal/domain"
	"funnelforge/internal/jobs"
	"funnelforge/internal/providers/genai"
)

type fakeGenerator struct {
	mu      sync.Mutex
	calls   []string
	inUse   int
	maxSeen int
	fn      func(req genai.ChunkRequest) (content.Document, error)
}

func (g *fakeGenerator) GenerateChunk(_ context.Context, req genai.ChunkRequest) (content.Document, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req.ChunkID)
	g.inUse++
	if g.inUse > g.maxSeen {
		g.maxSeen = g.inUse
	}
	g.mu.Unlock()

	doc, err := g.fn(req)

	g.mu.Lock()
	g.inUse--
	g.mu.Unlock()
	return doc, err
}

func (g *fakeGenerator) chunkIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	copy(out, g.calls)
	return out
}

// docForRequest fills every requested field the way a well-behaved generator
// would.
func docForRequest(req genai.ChunkRequest) (content.Document, error) {
	doc := make(content.Document, len(req.Fields))
	for _, f := range req.Fields {
		if f.SubAttr == "" {
			doc[f.Name] = "Generated " + f.Name
			continue
		}
		doc[f.Name] = map[string]any{f.SubAttr: "Generated " + f.Name}
	}
	return doc, nil
}

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.GenerationJob
	// progressLog records each persisted percentage in call order.
	progressLog []int
}

func newFakeJobStore(jobs ...*domain.GenerationJob) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]*domain.GenerationJob)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) Create(_ context.Context, job *domain.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *fakeJobStore) GetByIDForUser(_ context.Context, jobID, userID string) (*domain.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (s *fakeJobStore) ClaimNext(context.Context) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

func (s *fakeJobStore) UpdateProgress(_ context.Context, jobID string, progress int, _ string, _, _ []string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progressLog = append(s.progressLog, progress)
	return nil
}

func (s *fakeJobStore) Complete(_ context.Context, jobID string, _, _ []string, _ time.Time) error {
	return nil
}

func (s *fakeJobStore) Fail(_ context.Context, jobID string, _ string, _ time.Time) error {
	return nil
}

func (s *fakeJobStore) ListRecentByGroup(context.Context, string, string, time.Time) ([]*domain.GenerationJob, error) {
	return nil, nil
}

func (s *fakeJobStore) LatestByGroupType(context.Context, string, string, domain.JobType) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

var _ domain.JobRepository = (*fakeJobStore)(nil)

type fakeVersionStore struct {
	mu         sync.Mutex
	current    map[string]*domain.ContentVersion
	promotions int
}

func newFakeVersionStore() *fakeVersionStore {
	return &fakeVersionStore{current: make(map[string]*domain.ContentVersion)}
}

func versionKey(groupID string, contentType domain.JobType) string {
	return groupID + ":" + string(contentType)
}

func (s *fakeVersionStore) Current(_ context.Context, groupID string, contentType domain.JobType) (*domain.ContentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.current[versionKey(groupID, contentType)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (s *fakeVersionStore) Promote(_ context.Context, groupID string, contentType domain.JobType, contentJSON []byte, contentHash string) (*domain.ContentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promotions++
	key := versionKey(groupID, contentType)
	next := 1
	if prev, ok := s.current[key]; ok {
		next = prev.Version + 1
	}
	v := &domain.ContentVersion{
		ID:             fmt.Sprintf("%s-v%d", key, next),
		ContentGroupID: groupID,
		ContentType:    contentType,
		Version:        next,
		IsCurrent:      true,
		ContentJSON:    contentJSON,
		ContentHash:    contentHash,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	s.current[key] = v
	return v, nil
}

func (s *fakeVersionStore) RecentUpdates(context.Context, string, time.Time) ([]*domain.ContentVersion, error) {
	return nil, nil
}

var _ domain.VersionRepository = (*fakeVersionStore)(nil)

func (s *fakeVersionStore) seed(t *testing.T, groupID string, contentType domain.JobType, doc content.Document) {
	t.Helper()
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	_, err = s.Promote(context.Background(), groupID, contentType, raw, content.Hash(doc))
	require.NoError(t, err)
	s.mu.Lock()
	s.promotions = 0
	s.mu.Unlock()
}

func (s *fakeVersionStore) promoted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promotions
}

func smsJob() *domain.GenerationJob {
	return &domain.GenerationJob{
		ID:             "job-1",
		UserID:         "user-1",
		ContentGroupID: "group-1",
		Type:           domain.JobTypeSMSSequence,
		Status:         domain.JobStatusProcessing,
		CreatedAt:      time.Now(),
	}
}

func newTestOrchestrator(gen genai.Generator, jobStore domain.JobRepository, versions domain.VersionRepository, maxInFlight int) *Orchestrator {
	return New(Config{
		Generator:   gen,
		Tracker:     jobs.NewTracker(jobStore, zerolog.Nop()),
		Versions:    versions,
		Registry:    content.MustRegistry(),
		Logger:      zerolog.Nop(),
		MaxInFlight: maxInFlight,
	})
}

func TestRunFullPlanCompletes(t *testing.T) {
	gen := &fakeGenerator{fn: docForRequest}
	job := smsJob()
	versions := newFakeVersionStore()
	orch := newTestOrchestrator(gen, newFakeJobStore(job), versions, 0)

	res, err := orch.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Empty(t, job.SectionsFailed)
	assert.Len(t, job.SectionsDone, 12)
	assert.True(t, res.Report.Valid)
	assert.Equal(t, 1, versions.promoted())
	assert.ElementsMatch(t, []string{"messages-1-5", "messages-6-10"}, gen.chunkIDs())
}

func TestRunDigestStableAcrossRuns(t *testing.T) {
	run := func() string {
		gen := &fakeGenerator{fn: docForRequest}
		job := smsJob()
		versions := newFakeVersionStore()
		orch := newTestOrchestrator(gen, newFakeJobStore(job), versions, 0)
		res, err := orch.Run(context.Background(), job)
		require.NoError(t, err)
		return content.Hash(res.Document)
	}
	assert.Equal(t, run(), run())
}

func TestRunSkipsWriteWhenContentUnchanged(t *testing.T) {
	gen := &fakeGenerator{fn: docForRequest}
	job := smsJob()
	versions := newFakeVersionStore()
	orch := newTestOrchestrator(gen, newFakeJobStore(job), versions, 0)

	// First run establishes the stored document.
	_, err := orch.Run(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, 1, versions.promoted())

	// A second run producing byte-for-byte identical content must not bump
	// the version.
	again := smsJob()
	again.ID = "job-2"
	_, err = orch.Run(context.Background(), again)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, again.Status)
	assert.Equal(t, 1, versions.promoted())
}

func TestRunToleratesSingleChunkFailure(t *testing.T) {
	gen := &fakeGenerator{fn: func(req genai.ChunkRequest) (content.Document, error) {
		if req.ChunkID == "messages-6-10" {
			return nil, errors.New("model returned malformed payload")
		}
		return docForRequest(req)
	}}
	job := smsJob()
	versions := newFakeVersionStore()
	orch := newTestOrchestrator(gen, newFakeJobStore(job), versions, 0)

	res, err := orch.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.ElementsMatch(t, []string{"message_1", "message_2", "message_3", "message_4", "message_5"}, job.SectionsDone)
	assert.ElementsMatch(t,
		[]string{"message_6", "message_7", "message_8", "message_9", "message_10", "no_show_1", "no_show_2"},
		job.SectionsFailed)
	assert.Len(t, res.Document, 5)
	assert.Equal(t, 1, versions.promoted())
}

func TestRunFailsWhenEveryChunkFails(t *testing.T) {
	gen := &fakeGenerator{fn: func(genai.ChunkRequest) (content.Document, error) {
		return nil, errors.New("upstream unavailable")
	}}
	job := smsJob()
	versions := newFakeVersionStore()
	orch := newTestOrchestrator(gen, newFakeJobStore(job), versions, 0)

	res, err := orch.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "all chunks failed")
	assert.Empty(t, res.Document)
	assert.Equal(t, 0, versions.promoted())
}

func TestRunFailsOnPartitionOverlap(t *testing.T) {
	// A generator that leaks a field into the wrong chunk exposes a broken
	// partition plan; the job must fail rather than pick a winner.
	gen := &fakeGenerator{fn: func(req genai.ChunkRequest) (content.Document, error) {
		doc, _ := docForRequest(req)
		doc["message_1"] = map[string]any{"message": "duplicate"}
		return doc, nil
	}}
	job := smsJob()
	versions := newFakeVersionStore()
	orch := newTestOrchestrator(gen, newFakeJobStore(job), versions, 0)

	_, err := orch.Run(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "partition overlap")
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 0, versions.promoted())
}

func TestRunRetryRegeneratesOnlyRequestedSections(t *testing.T) {
	versions := newFakeVersionStore()

	stored := make(content.Document)
	for i := 1; i <= 5; i++ {
		name := fmt.Sprintf("message_%d", i)
		stored[name] = map[string]any{"message": "Kept " + name}
	}
	versions.seed(t, "group-1", domain.JobTypeSMSSequence, stored)

	gen := &fakeGenerator{fn: docForRequest}
	job := smsJob()
	job.Sections = []string{"message_6", "message_7", "message_8", "message_9", "message_10", "no_show_1", "no_show_2"}
	orch := newTestOrchestrator(gen, newFakeJobStore(job), versions, 0)

	res, err := orch.Run(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []string{"messages-6-10"}, gen.chunkIDs())
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	// Untouched fields come from the stored document, regenerated ones from
	// this run.
	assert.Equal(t, map[string]any{"message": "Kept message_1"}, res.Document["message_1"])
	assert.Equal(t, map[string]any{"message": "Generated message_6"}, res.Document["message_6"])
	assert.Len(t, res.Document, 12)
	assert.True(t, res.Report.Valid)
	assert.Equal(t, 1, versions.promoted())
}

func TestRunRetryWithUnknownSections(t *testing.T) {
	gen := &fakeGenerator{fn: docForRequest}
	job := smsJob()
	job.Sections = []string{"not_a_field"}
	orch := newTestOrchestrator(gen, newFakeJobStore(job), newFakeVersionStore(), 0)

	_, err := orch.Run(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrNothingToRetry)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Empty(t, gen.chunkIDs())
}

func TestRunUnknownContentType(t *testing.T) {
	gen := &fakeGenerator{fn: docForRequest}
	job := smsJob()
	job.Type = "blog_post"
	orch := newTestOrchestrator(gen, newFakeJobStore(job), newFakeVersionStore(), 0)

	_, err := orch.Run(context.Background(), job)
	assert.ErrorIs(t, err, domain.ErrInvalidContentType)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
}

func TestRunRespectsConcurrencyBound(t *testing.T) {
	gen := &fakeGenerator{fn: func(req genai.ChunkRequest) (content.Document, error) {
		time.Sleep(20 * time.Millisecond)
		return docForRequest(req)
	}}
	job := smsJob()
	orch := newTestOrchestrator(gen, newFakeJobStore(job), newFakeVersionStore(), 1)

	_, err := orch.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.maxSeen)
}

func TestRunProgressIsMonotonic(t *testing.T) {
	gen := &fakeGenerator{fn: docForRequest}
	job := smsJob()
	store := newFakeJobStore(job)
	orch := newTestOrchestrator(gen, store, newFakeVersionStore(), 0)

	_, err := orch.Run(context.Background(), job)
	require.NoError(t, err)

	store.mu.Lock()
	log := append([]int(nil), store.progressLog...)
	store.mu.Unlock()
	require.NotEmpty(t, log)
	for i := 1; i < len(log); i++ {
		assert.GreaterOrEqual(t, log[i], log[i-1])
	}
	assert.Equal(t, 100, log[len(log)-1])
}
