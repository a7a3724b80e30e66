// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package engine orchestrates page image generation: cover first, then the
// content pages with the cover as style reference, streaming progress events
// while workers upload results and record per-task state for later retries.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/n1n-api/xiaoshubao/configapi"
	"github.com/n1n-api/xiaoshubao/internal/generator"
	"github.com/n1n-api/xiaoshubao/internal/imageutil"
	"github.com/n1n-api/xiaoshubao/internal/metrics"
	"github.com/n1n-api/xiaoshubao/internal/objectstore"
	"github.com/n1n-api/xiaoshubao/internal/prompt"
	"github.com/n1n-api/xiaoshubao/internal/taskstate"
	"github.com/n1n-api/xiaoshubao/internal/tracing"
)

const (
	// maxConcurrentPages bounds parallel page workers per task.
	maxConcurrentPages = 15
	// maxAttempts is the number of generation attempts per page.
	maxAttempts = 3
	// defaultCallTimeout bounds a single upstream generation call.
	defaultCallTimeout = 30 * time.Second
	// eventBuffer is the capacity of a stream's event channel.
	eventBuffer = 16
)

// Service runs generation tasks against one provider configuration snapshot.
// It is rebuilt whenever the configuration changes.
type Service struct {
	providerName   string
	provider       *configapi.ImageProvider
	templates      prompt.Templates
	gen            generator.Generator
	store          objectstore.Store
	tasks          taskstate.Registry
	metricsFactory metrics.GenerationMetricsFactory
	tracer         tracing.GenerationTracer
	logger         *slog.Logger

	// backoffBase scales the exponential delay between generation attempts.
	// Attempt n sleeps backoffBase << n before the next try.
	backoffBase time.Duration
	// callTimeout bounds each upstream generation call.
	callTimeout time.Duration
	// maxConcurrent bounds parallel page workers.
	maxConcurrent int64
}

// New builds a Service from the active image provider of cfg. It returns a
// *ConfigError when no usable provider is configured.
func New(ctx context.Context, cfg *configapi.Config, store objectstore.Store, tasks taskstate.Registry,
	metricsFactory metrics.GenerationMetricsFactory, tracer tracing.GenerationTracer, logger *slog.Logger,
) (*Service, error) {
	name := cfg.ImageProviders.ActiveProvider
	provider, ok := cfg.ImageProviders.Active()
	if !ok {
		return nil, &ConfigError{Message: fmt.Sprintf("image provider %q is not configured", name)}
	}
	if provider.APIKey == "" {
		return nil, &ConfigError{Message: fmt.Sprintf("image provider %q has no api_key configured", name)}
	}
	gen, err := generator.New(ctx, provider)
	if err != nil {
		return nil, &ConfigError{Message: err.Error()}
	}
	logger.Info("image service ready",
		slog.String("provider", name),
		slog.String("type", string(provider.Type)),
		slog.String("model", generator.ModelName(provider)))
	return &Service{
		providerName:   name,
		provider:       provider,
		templates:      prompt.Templates{Full: cfg.Prompts.Image, Short: cfg.Prompts.ImageShort},
		gen:            gen,
		store:          store,
		tasks:          tasks,
		metricsFactory: metricsFactory,
		tracer:         tracer,
		logger:         logger,
		backoffBase:    time.Second,
		callTimeout:    defaultCallTimeout,
		maxConcurrent:  maxConcurrentPages,
	}, nil
}

// GenerateRequest is the input to Generate.
type GenerateRequest struct {
	// Pages is the outline to illustrate. Required.
	Pages []taskstate.Page
	// TaskID overrides the generated task id. Optional.
	TaskID string
	// FullOutline is the outline JSON substituted into full image prompts.
	FullOutline string
	// UserImages are raw reference photos uploaded by the user. They are
	// compressed before being stored or sent upstream.
	UserImages [][]byte
	// UserTopic is the topic text the outline was generated from.
	UserTopic string
	// Headers carries the incoming request headers for trace propagation.
	Headers map[string]string
}

// RetryRequest is the input to RetrySingle and Regenerate.
type RetryRequest struct {
	TaskID string
	Page   taskstate.Page
	// UseReference selects whether the stored cover image is passed as the
	// style reference.
	UseReference bool
	// FullOutline and UserTopic fall back to the stored task state when
	// empty.
	FullOutline string
	UserTopic   string
}

// RetryResult is the wire response of a single-page retry.
type RetryResult struct {
	Success   bool   `json:"success"`
	Index     int    `json:"index"`
	ImageURL  string `json:"image_url,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Generate starts a generation task and returns its event stream. Validation
// happens synchronously: the returned channel never carries input or
// configuration errors. The stream ends with a finish event and the channel is
// closed. Canceling ctx stops page submission and event emission; pages
// already in flight still finish into the task state.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (<-chan Event, error) {
	if len(req.Pages) == 0 {
		return nil, &InputError{Message: "pages must not be empty"}
	}
	if s.templates.Full == "" && !(s.provider.ShortPrompt && s.templates.Short != "") {
		return nil, &ConfigError{Message: "image prompt template is missing"}
	}
	taskID := req.TaskID
	if taskID == "" {
		id := uuid.New()
		taskID = fmt.Sprintf("task_%x", id[:4])
	}
	userImages, err := shrinkAll(req.UserImages)
	if err != nil {
		return nil, &InputError{Message: fmt.Sprintf("failed to read reference image: %v", err)}
	}
	if err := s.tasks.Put(ctx, taskID, taskstate.NewState(req.Pages, req.FullOutline, userImages, req.UserTopic)); err != nil {
		return nil, fmt.Errorf("failed to store task state: %w", err)
	}
	s.logger.Info("starting image generation task",
		slog.String("task_id", taskID),
		slog.Int("pages", len(req.Pages)),
		slog.String("provider", s.providerName))

	m := s.metricsFactory()
	m.StartRequest()
	if model := generator.ModelName(s.provider); model != "" {
		m.SetModel(model)
	}
	m.SetProvider(metrics.ProviderName(s.provider.Type))
	ctx, span := s.tracer.StartTask(ctx, taskID, len(req.Pages), req.Headers)

	events := make(chan Event, eventBuffer)
	go s.run(ctx, events, m, span, taskID, req, userImages)
	return events, nil
}

// run drives one generation task and closes events when done.
func (s *Service) run(ctx context.Context, events chan<- Event, m metrics.GenerationMetrics, span tracing.TaskSpan,
	taskID string, req GenerateRequest, userImages [][]byte,
) {
	defer close(events)
	workerCtx := context.WithoutCancel(ctx)

	total := len(req.Pages)
	generated := make([]string, 0, total)
	failedIndices := make([]int, 0)
	cover, rest := splitCover(req.Pages)

	job := pageJob{
		userImages:  userImages,
		fullOutline: req.FullOutline,
		userTopic:   req.UserTopic,
		phase:       PhaseCover,
	}

	if cover != nil {
		s.emit(ctx, events, Event{Kind: EventProgress, Data: PageProgress{
			Index:   cover.Index,
			Status:  statusGenerating,
			Message: "Generating cover...",
			Current: 1,
			Total:   total,
			Phase:   PhaseCover,
		}})

		job.page = *cover
		res := s.generatePage(workerCtx, ctx, m, taskID, job)
		if res.err == nil {
			generated = append(generated, res.filename)
			ref, err := imageutil.Shrink(res.data, imageutil.MaxReferenceBytes)
			if err != nil {
				s.logger.Warn("failed to compress cover reference",
					slog.String("task_id", taskID), slog.String("error", err.Error()))
			} else {
				job.reference = ref
			}
			s.recordCover(workerCtx, taskID, cover.Index, res.filename, job.reference)
			if span != nil {
				span.RecordPage(cover.Index, PhaseCover, true)
			}
			s.emit(ctx, events, Event{Kind: EventComplete, Data: PageComplete{
				Index:    cover.Index,
				Status:   statusDone,
				ImageURL: imageURL(taskID, res.filename),
				Phase:    PhaseCover,
			}})
		} else {
			failedIndices = append(failedIndices, cover.Index)
			s.recordFailure(workerCtx, taskID, cover.Index, res.err.Error())
			if span != nil {
				span.RecordPage(cover.Index, PhaseCover, false)
			}
			s.emit(ctx, events, Event{Kind: EventError, Data: PageError{
				Index:     cover.Index,
				Status:    statusError,
				Message:   res.err.Error(),
				Retryable: true,
				Phase:     PhaseCover,
			}})
		}
	}

	job.phase = PhaseContent
	switch {
	case len(rest) == 0:
	case s.provider.HighConcurrency:
		s.emit(ctx, events, Event{Kind: EventProgress, Data: BatchProgress{
			Status:  statusBatchStart,
			Message: fmt.Sprintf("Generating %d content pages concurrently...", len(rest)),
			Current: len(generated),
			Total:   total,
			Phase:   PhaseContent,
		}})
		for _, p := range rest {
			s.emit(ctx, events, Event{Kind: EventProgress, Data: PageProgress{
				Index:   p.Index,
				Status:  statusGenerating,
				Current: len(generated) + 1,
				Total:   total,
				Phase:   PhaseContent,
			}})
		}
		results := s.spawnPages(ctx, workerCtx, m, taskID, rest, job)
		for range rest {
			res := <-results
			if res.skipped {
				continue
			}
			if res.err == nil {
				generated = append(generated, res.filename)
				s.recordSuccess(workerCtx, taskID, res.page.Index, res.filename)
				if span != nil {
					span.RecordPage(res.page.Index, PhaseContent, true)
				}
				s.emit(ctx, events, Event{Kind: EventComplete, Data: PageComplete{
					Index:    res.page.Index,
					Status:   statusDone,
					ImageURL: imageURL(taskID, res.filename),
					Phase:    PhaseContent,
				}})
			} else {
				failedIndices = append(failedIndices, res.page.Index)
				s.recordFailure(workerCtx, taskID, res.page.Index, res.err.Error())
				if span != nil {
					span.RecordPage(res.page.Index, PhaseContent, false)
				}
				s.emit(ctx, events, Event{Kind: EventError, Data: PageError{
					Index:     res.page.Index,
					Status:    statusError,
					Message:   res.err.Error(),
					Retryable: true,
					Phase:     PhaseContent,
				}})
			}
		}
	default:
		s.emit(ctx, events, Event{Kind: EventProgress, Data: BatchProgress{
			Status:  statusBatchStart,
			Message: fmt.Sprintf("Generating %d content pages sequentially...", len(rest)),
			Current: len(generated),
			Total:   total,
			Phase:   PhaseContent,
		}})
		for _, p := range rest {
			if ctx.Err() != nil {
				break
			}
			s.emit(ctx, events, Event{Kind: EventProgress, Data: PageProgress{
				Index:   p.Index,
				Status:  statusGenerating,
				Current: len(generated) + 1,
				Total:   total,
				Phase:   PhaseContent,
			}})
			job.page = p
			res := s.generatePage(workerCtx, ctx, m, taskID, job)
			if res.err == nil {
				generated = append(generated, res.filename)
				s.recordSuccess(workerCtx, taskID, p.Index, res.filename)
				if span != nil {
					span.RecordPage(p.Index, PhaseContent, true)
				}
				s.emit(ctx, events, Event{Kind: EventComplete, Data: PageComplete{
					Index:    p.Index,
					Status:   statusDone,
					ImageURL: imageURL(taskID, res.filename),
					Phase:    PhaseContent,
				}})
			} else {
				failedIndices = append(failedIndices, p.Index)
				s.recordFailure(workerCtx, taskID, p.Index, res.err.Error())
				if span != nil {
					span.RecordPage(p.Index, PhaseContent, false)
				}
				s.emit(ctx, events, Event{Kind: EventError, Data: PageError{
					Index:     p.Index,
					Status:    statusError,
					Message:   res.err.Error(),
					Retryable: true,
					Phase:     PhaseContent,
				}})
			}
		}
	}

	sort.Ints(failedIndices)
	success := len(failedIndices) == 0
	m.RecordRequestCompletion(workerCtx, success)
	if span != nil {
		span.End(len(generated), len(failedIndices))
	}
	s.emit(ctx, events, Event{Kind: EventFinish, Data: Finish{
		Success:       success,
		TaskID:        taskID,
		Images:        generated,
		Total:         total,
		Completed:     len(generated),
		Failed:        len(failedIndices),
		FailedIndices: failedIndices,
	}})
	s.logger.Info("image generation task finished",
		slog.String("task_id", taskID),
		slog.Int("completed", len(generated)),
		slog.Int("failed", len(failedIndices)))
}

// RetrySingle regenerates one page of an existing task. The stored cover,
// reference photos, outline and topic fill in whatever the request leaves
// empty. A failed generation is reported in the result, not as an error.
func (s *Service) RetrySingle(ctx context.Context, req RetryRequest) (RetryResult, error) {
	job := pageJob{page: req.Page, fullOutline: req.FullOutline, userTopic: req.UserTopic}
	st, ok, err := s.tasks.Get(ctx, req.TaskID)
	if err != nil {
		return RetryResult{}, fmt.Errorf("failed to load task state: %w", err)
	}
	if ok {
		if req.UseReference {
			job.reference = st.CoverImage
		}
		if job.fullOutline == "" {
			job.fullOutline = st.FullOutline
		}
		if job.userTopic == "" {
			job.userTopic = st.UserTopic
		}
		job.userImages = st.UserImages
	}

	m := s.metricsFactory()
	m.StartRequest()
	if model := generator.ModelName(s.provider); model != "" {
		m.SetModel(model)
	}
	m.SetProvider(metrics.ProviderName(s.provider.Type))

	res := s.generatePage(ctx, ctx, m, req.TaskID, job)
	m.RecordRequestCompletion(ctx, res.err == nil)
	if res.err != nil {
		return RetryResult{Success: false, Index: req.Page.Index, Error: res.err.Error(), Retryable: true}, nil
	}
	s.recordSuccess(ctx, req.TaskID, req.Page.Index, res.filename)
	return RetryResult{Success: true, Index: req.Page.Index, ImageURL: imageURL(req.TaskID, res.filename)}, nil
}

// Regenerate regenerates a page that already succeeded. It behaves exactly
// like RetrySingle; on success the stored image is overwritten.
func (s *Service) Regenerate(ctx context.Context, req RetryRequest) (RetryResult, error) {
	return s.RetrySingle(ctx, req)
}

// RetryFailed regenerates the given failed pages of an existing task in
// parallel and returns the retry event stream. The stored cover and outline
// are reused; user reference photos and topic are not.
func (s *Service) RetryFailed(ctx context.Context, taskID string, pages []taskstate.Page) (<-chan Event, error) {
	var reference []byte
	var fullOutline string
	st, ok, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task state: %w", err)
	}
	if ok {
		reference = st.CoverImage
		fullOutline = st.FullOutline
	}
	s.logger.Info("retrying failed pages",
		slog.String("task_id", taskID), slog.Int("pages", len(pages)))

	m := s.metricsFactory()
	m.StartRequest()
	if model := generator.ModelName(s.provider); model != "" {
		m.SetModel(model)
	}
	m.SetProvider(metrics.ProviderName(s.provider.Type))

	events := make(chan Event, eventBuffer)
	go s.runRetry(ctx, events, m, taskID, pages, reference, fullOutline)
	return events, nil
}

// runRetry drives one batch retry and closes events when done.
func (s *Service) runRetry(ctx context.Context, events chan<- Event, m metrics.GenerationMetrics,
	taskID string, pages []taskstate.Page, reference []byte, fullOutline string,
) {
	defer close(events)
	workerCtx := context.WithoutCancel(ctx)

	total := len(pages)
	completed, failed := 0, 0
	s.emit(ctx, events, Event{Kind: EventRetryStart, Data: RetryStart{
		Total:   total,
		Message: fmt.Sprintf("Retrying %d failed images", total),
	}})

	results := s.spawnPages(ctx, workerCtx, m, taskID, pages, pageJob{reference: reference, fullOutline: fullOutline})
	for range pages {
		res := <-results
		if res.skipped {
			continue
		}
		if res.err == nil {
			completed++
			s.recordSuccess(workerCtx, taskID, res.page.Index, res.filename)
			s.emit(ctx, events, Event{Kind: EventComplete, Data: PageComplete{
				Index:    res.page.Index,
				Status:   statusDone,
				ImageURL: imageURL(taskID, res.filename),
			}})
		} else {
			failed++
			s.emit(ctx, events, Event{Kind: EventError, Data: PageError{
				Index:     res.page.Index,
				Status:    statusError,
				Message:   res.err.Error(),
				Retryable: true,
			}})
		}
	}

	success := failed == 0
	m.RecordRequestCompletion(workerCtx, success)
	s.emit(ctx, events, Event{Kind: EventRetryFinish, Data: RetryFinish{
		Success:   success,
		Total:     total,
		Completed: completed,
		Failed:    failed,
	}})
}

// TaskState returns the JSON-safe snapshot of a task.
func (s *Service) TaskState(ctx context.Context, taskID string) (taskstate.Snapshot, bool, error) {
	st, ok, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return taskstate.Snapshot{}, false, fmt.Errorf("failed to load task state: %w", err)
	}
	if !ok {
		return taskstate.Snapshot{}, false, nil
	}
	return st.Snapshot(taskID), true, nil
}

// CleanupTask removes the stored state of a task.
func (s *Service) CleanupTask(ctx context.Context, taskID string) error {
	return s.tasks.Delete(ctx, taskID)
}

// pageJob carries everything one page worker needs.
type pageJob struct {
	page        taskstate.Page
	reference   []byte
	userImages  [][]byte
	fullOutline string
	userTopic   string
	// phase labels metrics; it is empty for retries.
	phase string
}

// pageResult is a worker's outcome for one page.
type pageResult struct {
	page     taskstate.Page
	filename string
	data     []byte
	err      error
	// skipped is set when the page was never started because the request
	// was canceled.
	skipped bool
}

// spawnPages starts one worker per page, bounded by the concurrency limit,
// and returns the channel results arrive on in completion order. The channel
// is buffered for all pages so workers never block on a departed reader.
func (s *Service) spawnPages(reqCtx, workerCtx context.Context, m metrics.GenerationMetrics,
	taskID string, pages []taskstate.Page, base pageJob,
) <-chan pageResult {
	results := make(chan pageResult, len(pages))
	sem := semaphore.NewWeighted(s.maxConcurrent)
	for _, p := range pages {
		job := base
		job.page = p
		go func() {
			if err := sem.Acquire(reqCtx, 1); err != nil {
				results <- pageResult{page: job.page, skipped: true}
				return
			}
			defer sem.Release(1)
			results <- s.generatePage(workerCtx, reqCtx, m, taskID, job)
		}()
	}
	return results
}

// generatePage generates and stores one page image, retrying provider
// failures with exponential backoff. ctx must outlive the request; reqCtx is
// only consulted to cut backoff sleeps short.
func (s *Service) generatePage(ctx, reqCtx context.Context, m metrics.GenerationMetrics, taskID string, job pageJob) pageResult {
	res := pageResult{page: job.page}
	promptText, err := prompt.Image(s.templates, s.provider.ShortPrompt, prompt.Data{
		PageContent: job.page.Content,
		PageType:    job.page.Type,
		FullOutline: job.fullOutline,
		UserTopic:   job.userTopic,
	})
	if err != nil {
		res.err = err
		return res
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		start := time.Now()
		filename, data, err := s.generateOnce(ctx, taskID, job, promptText)
		m.RecordPageGeneration(ctx, err == nil, job.phase, time.Since(start))
		if err == nil {
			s.logger.Debug("page image stored",
				slog.String("task_id", taskID), slog.Int("index", job.page.Index))
			res.filename = filename
			res.data = data
			return res
		}
		res.err = err
		s.logger.Warn("page generation failed",
			slog.String("task_id", taskID),
			slog.Int("index", job.page.Index),
			slog.Int("attempt", attempt+1),
			slog.String("error", clip(err.Error(), 200)))
		var storageErr *StorageError
		if errors.As(err, &storageErr) {
			break
		}
		if attempt < maxAttempts-1 {
			m.RecordRetry(ctx)
			sleepBackoff(reqCtx, s.backoffBase<<attempt)
		}
	}
	return res
}

// generateOnce performs a single generation attempt: call the provider, then
// upload the original and its thumbnail. The prompt is rendered once per page
// by the caller.
func (s *Service) generateOnce(ctx context.Context, taskID string, job pageJob, promptText string) (string, []byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	data, err := s.gen.GenerateImage(callCtx, generator.Request{
		Prompt:         promptText,
		Reference:      job.reference,
		UserReferences: job.userImages,
	})
	if err != nil {
		return "", nil, &ProviderError{Err: err}
	}
	if len(data) == 0 {
		return "", nil, &ProviderError{Err: errors.New("generator returned empty data")}
	}
	filename := fmt.Sprintf("%d.png", job.page.Index)
	if _, err := s.store.Upload(ctx, taskID+"/"+filename, data, "image/png"); err != nil {
		return "", nil, &StorageError{Err: err}
	}
	thumb, err := imageutil.Thumbnail(data, imageutil.MaxThumbnailBytes)
	if err != nil {
		return "", nil, &StorageError{Err: fmt.Errorf("failed to build thumbnail: %w", err)}
	}
	if _, err := s.store.Upload(ctx, fmt.Sprintf("%s/thumb_%d.jpg", taskID, job.page.Index), thumb, "image/jpeg"); err != nil {
		return "", nil, &StorageError{Err: err}
	}
	return filename, data, nil
}

// emit sends ev unless the request context is done. Events are dropped, not
// queued, once the requester is gone.
func (s *Service) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case events <- ev:
		return true
	}
}

// recordSuccess stores the filename for a generated page and clears any
// previous failure.
func (s *Service) recordSuccess(ctx context.Context, taskID string, index int, filename string) {
	s.updateState(ctx, taskID, func(st *taskstate.State) {
		st.Generated[index] = filename
		delete(st.Failed, index)
	})
}

// recordCover additionally stores the compressed cover reference.
func (s *Service) recordCover(ctx context.Context, taskID string, index int, filename string, ref []byte) {
	s.updateState(ctx, taskID, func(st *taskstate.State) {
		st.Generated[index] = filename
		delete(st.Failed, index)
		st.CoverImage = ref
	})
}

// recordFailure stores the last error message for a page.
func (s *Service) recordFailure(ctx context.Context, taskID string, index int, message string) {
	s.updateState(ctx, taskID, func(st *taskstate.State) {
		st.Failed[index] = message
	})
}

func (s *Service) updateState(ctx context.Context, taskID string, fn func(*taskstate.State)) {
	ok, err := s.tasks.Update(ctx, taskID, fn)
	if err != nil {
		s.logger.Error("failed to update task state",
			slog.String("task_id", taskID), slog.String("error", err.Error()))
		return
	}
	if !ok {
		s.logger.Warn("task state missing during update", slog.String("task_id", taskID))
	}
}

// splitCover separates the cover page from the content pages. When no page is
// typed as cover, the first page serves as one.
func splitCover(pages []taskstate.Page) (*taskstate.Page, []taskstate.Page) {
	var cover *taskstate.Page
	rest := make([]taskstate.Page, 0, len(pages))
	for i := range pages {
		if pages[i].Type == taskstate.PageTypeCover {
			cover = &pages[i]
		} else {
			rest = append(rest, pages[i])
		}
	}
	if cover == nil && len(pages) > 0 {
		cover = &pages[0]
		rest = pages[1:]
	}
	return cover, rest
}

// shrinkAll compresses user reference images into the reference byte budget.
func shrinkAll(images [][]byte) ([][]byte, error) {
	if len(images) == 0 {
		return nil, nil
	}
	out := make([][]byte, len(images))
	for i, img := range images {
		shrunk, err := imageutil.Shrink(img, imageutil.MaxReferenceBytes)
		if err != nil {
			return nil, err
		}
		out[i] = shrunk
	}
	return out, nil
}

// sleepBackoff waits for d or until ctx is done, whichever comes first.
func sleepBackoff(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// imageURL is the serving path of a stored page image.
func imageURL(taskID, filename string) string {
	return fmt.Sprintf("/api/images/%s/%s", taskID, filename)
}

// clip limits s to n runes for log output.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
