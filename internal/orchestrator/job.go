// Package orchestrator drives one analysis run at a time across event
// extraction, case building, and pattern mining, reconciling the mined
// candidates against the workflow registry, per spec.md §4.6.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/flowmine/engine/internal/apierr"
	"github.com/flowmine/engine/internal/casebuilder"
	"github.com/flowmine/engine/internal/enrich"
	"github.com/flowmine/engine/internal/extract"
	"github.com/flowmine/engine/internal/mining"
	"github.com/flowmine/engine/internal/store"
)

// eventChunkSize bounds how many events one extraction goroutine handles
// before the orchestrator re-checks for cancellation.
const eventChunkSize = 500

// Orchestrator coordinates a single analysis job at a time. A second
// StartAnalysis call while one is running is rejected rather than queued.
type Orchestrator struct {
	store          *store.Store
	extractor      *extract.Engine
	enrichQ        *enrich.Queue
	maxGap         time.Duration
	afkMinDuration time.Duration
	maxConcurrency int64
	logger         *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger overrides the orchestrator's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New constructs an Orchestrator. enrichQ may be nil to disable pushing
// rule-unresolved events into LLM enrichment. maxConcurrency bounds
// concurrent extraction chunks and defaults to 4 when non-positive.
func New(st *store.Store, extractor *extract.Engine, enrichQ *enrich.Queue, maxGap, afkMinDuration time.Duration, maxConcurrency int64, opts ...Option) *Orchestrator {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	o := &Orchestrator{
		store:          st,
		extractor:      extractor,
		enrichQ:        enrichQ,
		maxGap:         maxGap,
		afkMinDuration: afkMinDuration,
		maxConcurrency: maxConcurrency,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartAnalysis launches a snapshot -> extract -> build cases -> mine ->
// reconcile run over bucket's events in [start, end). Only one analysis
// job may be in flight; a concurrent call returns a JobInProgress error.
func (o *Orchestrator) StartAnalysis(ctx context.Context, bucket, start, end string) (*store.Job, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, apierr.New(apierr.JobInProgress, "an analysis job is already running")
	}
	o.running = true
	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.mu.Unlock()

	job, err := o.store.CreateJob(ctx, store.JobKindAnalysis)
	if err != nil {
		o.finish()
		return nil, fmt.Errorf("orchestrator: create job: %w", err)
	}

	go o.run(runCtx, job.ID, bucket, start, end)
	return job, nil
}

// CancelAnalysis cancels the in-flight analysis job, if any. It is a
// no-op when no job is running.
func (o *Orchestrator) CancelAnalysis() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.running = false
	o.cancel = nil
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, jobID, bucket, start, end string) {
	defer o.finish()
	if err := o.store.MarkJobRunning(ctx, jobID); err != nil {
		o.logger.Error("orchestrator: mark running failed", "job", jobID, "err", err)
		return
	}

	if err := o.runStages(ctx, jobID, bucket, start, end); err != nil {
		reason := err.Error()
		if ctx.Err() != nil {
			reason = "cancelled"
		}
		if markErr := o.store.MarkJobFailed(context.Background(), jobID, reason); markErr != nil {
			o.logger.Error("orchestrator: mark failed failed", "job", jobID, "err", markErr)
		}
		return
	}
	if err := o.store.MarkJobDone(context.Background(), jobID, bucket); err != nil {
		o.logger.Error("orchestrator: mark done failed", "job", jobID, "err", err)
	}
}

// stepRecord is one persisted step, carried alongside its case-local
// fields so mining and reconciliation never need to re-query the store.
type stepRecord struct {
	ID        store.UUID
	Label     string
	Start     string
	End       string
	Duration  float64
	ObjectIDs []store.UUID
}

func (o *Orchestrator) runStages(ctx context.Context, jobID, bucket, start, end string) error {
	events, err := o.store.ReadEvents(ctx, bucket, start, end)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := o.store.SetJobProgress(ctx, jobID, 0.1); err != nil {
		return err
	}

	if err := o.extractChunked(ctx, events); err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	if err := o.store.SetJobProgress(ctx, jobID, 0.4); err != nil {
		return err
	}

	objectsOf := o.objectsOfFunc(ctx)
	cases, err := casebuilder.Sessionize(events, o.maxGap, nil, o.afkMinDuration)
	if err != nil {
		return fmt.Errorf("sessionize: %w", err)
	}
	cases = casebuilder.RefineByObjectCoherence(cases, objectsOf)
	if err := o.store.SetJobProgress(ctx, jobID, 0.55); err != nil {
		return err
	}

	recordsByCase, err := o.buildAndPersistSteps(ctx, cases, objectsOf)
	if err != nil {
		return fmt.Errorf("steps: %w", err)
	}
	if err := o.store.SetJobProgress(ctx, jobID, 0.75); err != nil {
		return err
	}

	labeledCases := make([][]mining.LabeledStep, len(recordsByCase))
	for i, records := range recordsByCase {
		labeled := make([]mining.LabeledStep, len(records))
		for j, r := range records {
			labeled[j] = mining.LabeledStep{Label: r.Label, Duration: r.Duration}
		}
		labeledCases[i] = labeled
	}
	candidates := mining.Discover(labeledCases, mining.DefaultDiscoverOptions())
	if err := o.store.SetJobProgress(ctx, jobID, 0.9); err != nil {
		return err
	}

	if err := o.reconcile(ctx, bucket, candidates, recordsByCase); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	return o.store.SetJobProgress(ctx, jobID, 1.0)
}

// extractChunked fans extraction out across chunks of eventChunkSize
// events, bounded by maxConcurrency, and pushes any event that rules
// left unlinked onto the enrichment queue for LLM analysis.
func (o *Orchestrator) extractChunked(ctx context.Context, events []store.Event) error {
	sem := semaphore.NewWeighted(o.maxConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for start := 0; start < len(events); start += eventChunkSize {
		if gctx.Err() != nil {
			break
		}
		end := start + eventChunkSize
		if end > len(events) {
			end = len(events)
		}
		chunk := events[start:end]

		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			return o.extractChunk(gctx, chunk)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) extractChunk(ctx context.Context, chunk []store.Event) error {
	for _, ev := range chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.extractor.ExtractEvent(ctx, ev); err != nil {
			return err
		}
		o.enqueueForEnrichmentIfUnresolved(ctx, ev)
	}
	return nil
}

func (o *Orchestrator) enqueueForEnrichmentIfUnresolved(ctx context.Context, ev store.Event) {
	if o.enrichQ == nil {
		return
	}
	links, err := o.store.ObjectsForEvent(ctx, ev.BucketID, ev.ID)
	if err != nil {
		o.logger.Warn("orchestrator: objects for event failed", "bucket", ev.BucketID, "event", ev.ID, "err", err)
		return
	}
	if len(links) > 0 {
		return
	}
	text := ev.OCRText()
	if text == "" {
		text = ev.Title()
	}
	if text == "" {
		return
	}
	o.enrichQ.Push(enrich.Task{
		BucketID:    ev.BucketID,
		EventID:     ev.ID,
		Fingerprint: enrich.Fingerprint(text, nil),
		SourceText:  text,
	})
}

func (o *Orchestrator) objectsOfFunc(ctx context.Context) func(store.Event) []store.UUID {
	return func(ev store.Event) []store.UUID {
		links, err := o.store.ObjectsForEvent(ctx, ev.BucketID, ev.ID)
		if err != nil {
			o.logger.Warn("orchestrator: objects for event failed", "bucket", ev.BucketID, "event", ev.ID, "err", err)
			return nil
		}
		ids := make([]store.UUID, len(links))
		for i, l := range links {
			ids[i] = l.ObjectID
		}
		return ids
	}
}

// buildAndPersistSteps synthesizes every case's steps first, then
// persists all of them in a single store transaction — one commit for
// the whole sessionization stage rather than one per step, per
// spec.md §4.6.
func (o *Orchestrator) buildAndPersistSteps(ctx context.Context, cases []casebuilder.Case, objectsOf func(store.Event) []store.UUID) ([][]stepRecord, error) {
	type pending struct {
		caseIndex int
		step      store.Step
	}
	var toPersist []pending

	for ci, c := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		steps, err := casebuilder.SynthesizeSteps(c, objectsOf)
		if err != nil {
			return nil, fmt.Errorf("synthesize case %d: %w", ci, err)
		}
		for _, st := range steps {
			evRefs := make([]store.EventRef, len(st.Events))
			for i, ev := range st.Events {
				evRefs[i] = store.EventRef{BucketID: ev.BucketID, EventID: ev.ID}
			}
			toPersist = append(toPersist, pending{
				caseIndex: ci,
				step: store.Step{
					Name:      st.Label,
					Start:     st.Start,
					End:       st.End,
					Duration:  st.Duration,
					Events:    evRefs,
					ObjectIDs: st.ObjectIDs,
				},
			})
		}
	}

	batch := make([]store.Step, len(toPersist))
	for i, p := range toPersist {
		batch[i] = p.step
	}
	created, err := o.store.CreateSteps(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("persist steps: %w", err)
	}

	out := make([][]stepRecord, len(cases))
	for i, p := range toPersist {
		st := created[i]
		out[p.caseIndex] = append(out[p.caseIndex], stepRecord{
			ID:        st.ID,
			Label:     st.Name,
			Start:     st.Start,
			End:       st.End,
			Duration:  st.Duration,
			ObjectIDs: st.ObjectIDs,
		})
	}
	return out, nil
}

// reconcile matches every candidate pattern against every case's steps,
// then commits the whole stage — newly discovered workflows plus every
// occurrence found against them — in a single store transaction via
// PersistReconciliation, per spec.md §4.6.
func (o *Orchestrator) reconcile(ctx context.Context, bucket string, candidates []mining.WorkflowCandidate, recordsByCase [][]stepRecord) error {
	if len(candidates) == 0 {
		return nil
	}
	existing, err := o.store.ListWorkflows(ctx, true)
	if err != nil {
		return fmt.Errorf("list workflows: %w", err)
	}

	var newWorkflows []store.Workflow
	// workflowIDOf resolves a candidate's target workflow id: either an
	// existing workflow, or the pre-assigned id of one of newWorkflows,
	// so occurrences can reference it before it is actually persisted.
	workflowIDOf := make(map[int]store.UUID, len(candidates))

	for ci, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		wf := findWorkflowByPattern(existing, cand.Canonical.Labels)
		if wf != nil {
			workflowIDOf[ci] = wf.ID
			continue
		}
		if wf := findWorkflowByPattern(newWorkflows, cand.Canonical.Labels); wf != nil {
			workflowIDOf[ci] = wf.ID
			continue
		}
		draft := store.Workflow{
			ID:      store.NewUUID(),
			Name:    "workflow-" + strings.Join(cand.Canonical.Labels, "-"),
			Pattern: patternSteps(cand.Canonical.Labels),
		}
		newWorkflows = append(newWorkflows, draft)
		workflowIDOf[ci] = draft.ID
	}

	var occs []store.Occurrence
	for ci, cand := range candidates {
		workflowID := workflowIDOf[ci]
		for caseIdx, records := range recordsByCase {
			labels := make([]string, len(records))
			for i, r := range records {
				labels[i] = r.Label
			}
			matches := mining.MatchWorkflow(labels, cand.Canonical.Labels, mining.DefaultMatchOptions())
			for _, m := range matches {
				caseID := fmt.Sprintf("%s#%d", bucket, caseIdx)
				occs = append(occs, occurrenceFromMatch(workflowID, caseID, records, m))
			}
		}
	}

	if len(newWorkflows) == 0 && len(occs) == 0 {
		return nil
	}
	if _, _, err := o.store.PersistReconciliation(ctx, newWorkflows, occs); err != nil {
		return fmt.Errorf("persist reconciliation: %w", err)
	}
	return nil
}

func occurrenceFromMatch(workflowID store.UUID, caseID string, records []stepRecord, m mining.Match) store.Occurrence {
	steps := make([]store.OccurrenceStepInstance, len(m.Positions))
	seen := map[store.UUID]bool{}
	var objIDs []store.UUID
	var duration float64
	for i, pos := range m.Positions {
		r := records[pos]
		steps[i] = store.OccurrenceStepInstance{Position: i, StepID: r.ID}
		duration += r.Duration
		for _, id := range r.ObjectIDs {
			if !seen[id] {
				seen[id] = true
				objIDs = append(objIDs, id)
			}
		}
	}
	first := records[m.Positions[0]]
	last := records[m.Positions[len(m.Positions)-1]]
	return store.Occurrence{
		WorkflowID: workflowID,
		CaseID:     caseID,
		Steps:      steps,
		ObjectIDs:  objIDs,
		Start:      first.Start,
		End:        last.End,
		Duration:   duration,
	}
}

func findWorkflowByPattern(workflows []store.Workflow, labels []string) *store.Workflow {
	for i := range workflows {
		if patternLabelsEqual(workflows[i].Pattern, labels) {
			return &workflows[i]
		}
	}
	return nil
}

func patternLabelsEqual(pattern []store.PatternStep, labels []string) bool {
	if len(pattern) != len(labels) {
		return false
	}
	for i := range pattern {
		if pattern[i].Label != labels[i] {
			return false
		}
	}
	return true
}

func patternSteps(labels []string) []store.PatternStep {
	gap := mining.DefaultMatchOptions().MaxGapInsideWorkflow
	out := make([]store.PatternStep, len(labels))
	for i, l := range labels {
		out[i] = store.PatternStep{Label: l, AllowedGap: gap}
	}
	return out
}
