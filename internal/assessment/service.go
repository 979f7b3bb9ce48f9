// Package assessment implements the questionnaire session engine: session
// lifecycle, answer recording, next-question selection and checkpoints.
package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/selve/internal/adaptive"
	"github.com/ashureev/selve/internal/catalog"
	"github.com/ashureev/selve/internal/domain"
	"github.com/ashureev/selve/internal/render"
	"github.com/ashureev/selve/internal/shared"
	"github.com/ashureev/selve/internal/store"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Engine picks the next question in adaptive mode.
type Engine interface {
	NextQuestion(ctx context.Context, sessionID string, answers []*domain.Answer) (*adaptive.NextResult, error)
}

// Options configures a Service.
type Options struct {
	Mode         Mode
	Engine       Engine
	Catalog      catalog.Source
	Renderers    *render.Registry
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

// Service coordinates the session and answer stores with question selection.
type Service struct {
	repo           store.Repository
	catalog        catalog.Source
	renderers      *render.Registry
	engine         Engine
	mode           Mode
	storeTimeout   time.Duration
	metadataSchema *jsonschema.Schema
	logger         *slog.Logger
	now            func() time.Time
	newID          func() string
}

// NewService constructs a service bound to repo.
func NewService(repo store.Repository, opts Options) (*Service, error) {
	if repo == nil {
		return nil, errors.New("assessment service requires a repository")
	}
	if opts.Mode == "" {
		opts.Mode = ModeLocal
	}
	if opts.Mode != ModeLocal && opts.Mode != ModeAdaptive {
		return nil, fmt.Errorf("unknown question mode %q", opts.Mode)
	}
	if opts.Mode == ModeAdaptive && opts.Engine == nil {
		return nil, errors.New("adaptive mode requires an engine")
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.NewStoreSource(repo)
	}
	if opts.Renderers == nil {
		opts.Renderers = render.Default()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	schema, err := compileMetadataSchema()
	if err != nil {
		return nil, fmt.Errorf("metadata schema: %w", err)
	}

	return &Service{
		repo:           repo,
		catalog:        opts.Catalog,
		renderers:      opts.Renderers,
		engine:         opts.Engine,
		mode:           opts.Mode,
		storeTimeout:   opts.StoreTimeout,
		metadataSchema: schema,
		logger:         opts.Logger,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
	}, nil
}

// Mode returns the configured question mode.
func (s *Service) Mode() Mode {
	return s.mode
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// storeErr wraps a repository failure, flagging lock conflicts as retryable.
func storeErr(op string, err error) error {
	return &domain.PersistenceError{Op: op, Retryable: shared.IsConflictError(err), Err: err}
}

func (s *Service) loadSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.NewValidationError("sessionId", "is required")
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	session, err := s.repo.GetSession(sctx, sessionID)
	if err != nil {
		return nil, storeErr("get session", err)
	}
	if session == nil {
		return nil, &domain.NotFoundError{Kind: "session", ID: sessionID}
	}
	return session, nil
}

func (s *Service) loadAnswers(ctx context.Context, sessionID string) ([]*domain.Answer, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	answers, err := s.repo.ListAnswers(sctx, sessionID)
	if err != nil {
		return nil, storeErr("list answers", err)
	}
	return answers, nil
}

func (s *Service) loadCatalog(ctx context.Context) (*domain.Catalog, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	c, err := s.catalog.Load(sctx)
	if err != nil {
		return nil, storeErr("load catalog", err)
	}
	return c, nil
}

// Create starts a new in-progress session.
func (s *Service) Create(ctx context.Context, userID *string, metadata json.RawMessage) (*domain.Session, error) {
	if userID != nil && strings.TrimSpace(*userID) == "" {
		userID = nil
	}
	if metadata == nil || string(metadata) == "null" {
		metadata = json.RawMessage(`{}`)
	} else if err := s.validateMetadata(metadata); err != nil {
		return nil, err
	}

	now := s.now()
	session := &domain.Session{
		ID:          s.newID(),
		UserID:      userID,
		Status:      domain.StatusInProgress,
		CurrentStep: 0,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.repo.CreateSession(sctx, session); err != nil {
		return nil, storeErr("create session", err)
	}

	s.logger.Info("Session created", "session_id", session.ID, "anonymous", userID == nil)
	return session, nil
}

// Get returns the session with its answers.
func (s *Service) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	answers, err := s.loadAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Answers = answers
	return session, nil
}

// Answers returns a session's answers ordered by creation time.
func (s *Service) Answers(ctx context.Context, sessionID string) ([]*domain.Answer, error) {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.loadAnswers(ctx, sessionID)
}

// RecordAnswer upserts the answer and recomputes the session's current step.
func (s *Service) RecordAnswer(ctx context.Context, sessionID, questionID string, value json.RawMessage) (*domain.Answer, int, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, 0, domain.NewValidationError("sessionId", "is required")
	}
	if strings.TrimSpace(questionID) == "" {
		return nil, 0, domain.NewValidationError("questionId", "is required")
	}
	if len(value) == 0 || string(value) == "null" {
		return nil, 0, domain.NewValidationError("answer", "is required")
	}
	if !json.Valid(value) {
		return nil, 0, domain.NewValidationError("answer", "must be valid JSON")
	}

	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, 0, err
	}
	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, 0, err
	}
	if q := cat.Question(questionID); q != nil {
		if err := s.renderers.Lookup(q.Type).Validate(q.Config, value); err != nil {
			return nil, 0, domain.NewValidationError("answer", "%v", err)
		}
	}

	now := s.now()
	answer := &domain.Answer{
		ID:         s.newID(),
		SessionID:  sessionID,
		QuestionID: questionID,
		Value:      value,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	stored, step, err := s.repo.UpsertAnswer(sctx, answer)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, 0, &domain.NotFoundError{Kind: "session", ID: sessionID}
		}
		return nil, 0, storeErr("record answer", err)
	}

	s.logger.Debug("Answer recorded",
		"session_id", sessionID,
		"question_id", questionID,
		"current_step", step)
	return stored, step, nil
}

// Update applies a partial patch. Only fields present in patch are touched.
// The patch is applied to the locked stored row, so answers and completions
// that land concurrently are never rolled back.
func (s *Service) Update(ctx context.Context, sessionID string, patch domain.SessionPatch) (*domain.Session, error) {
	if patch.Empty() {
		return s.loadSession(ctx, sessionID)
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.NewValidationError("sessionId", "is required")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, domain.NewValidationError("status", "unknown status %q", *patch.Status)
	}
	if patch.CurrentStep != nil && *patch.CurrentStep < 0 {
		return nil, domain.NewValidationError("currentStep", "must not be negative")
	}
	if patch.Metadata != nil {
		if err := s.validateMetadata(patch.Metadata); err != nil {
			return nil, err
		}
	}

	now := s.now()
	apply := func(session *domain.Session) error {
		if patch.Status != nil {
			switch {
			case *patch.Status == domain.StatusInProgress && session.IsCompleted():
				return domain.NewValidationError("status", "a completed session cannot be reopened")
			case *patch.Status == domain.StatusCompleted:
				session.Complete(now)
			}
		}
		if patch.CurrentStep != nil {
			if *patch.CurrentStep < session.CurrentStep {
				return domain.NewValidationError("currentStep", "may not decrease from %d to %d", session.CurrentStep, *patch.CurrentStep)
			}
			session.CurrentStep = *patch.CurrentStep
		}
		if patch.Metadata != nil {
			session.Metadata = patch.Metadata
		}
		session.UpdatedAt = now
		return nil
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	session, err := s.repo.UpdateSession(sctx, sessionID, apply)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			return nil, err
		case domain.IsNotFound(err):
			return nil, &domain.NotFoundError{Kind: "session", ID: sessionID}
		}
		return nil, storeErr("update session", err)
	}
	return session, nil
}

// complete transitions the session to completed; repeated calls are no-ops.
func (s *Service) complete(ctx context.Context, sessionID string) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	done, err := s.repo.CompleteSession(sctx, sessionID, s.now())
	if err != nil {
		if domain.IsNotFound(err) {
			return &domain.NotFoundError{Kind: "session", ID: sessionID}
		}
		return storeErr("complete session", err)
	}
	if done {
		s.logger.Info("Session completed", "session_id", sessionID)
	}
	return nil
}

// Advance picks the next unanswered question from the bank in ascending order.
// With none left the session is completed. Completed sessions report done.
func (s *Service) Advance(ctx context.Context, sessionID string) (*Step, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	answers, err := s.loadAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	answered := domain.AnsweredSet(answers)
	progress := domain.CalculateProgress(len(cat.Questions), answeredCount(cat.Questions, answered))

	if session.IsCompleted() {
		return &Step{Done: true, Progress: progress}, nil
	}

	next := nextUnanswered(cat.Questions, answered)
	if next == nil {
		if err := s.complete(ctx, sessionID); err != nil {
			return nil, err
		}
		return &Step{Done: true, Progress: progress}, nil
	}

	return &Step{
		Question:   s.view(next, nil),
		Checkpoint: ResolveCheckpoint(cat.Questions, cat.Checkpoints, next),
		Progress:   progress,
	}, nil
}

// Next returns the next step using the configured mode.
func (s *Service) Next(ctx context.Context, sessionID string) (*Step, error) {
	if s.mode == ModeLocal {
		return s.Advance(ctx, sessionID)
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	answers, err := s.loadAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsCompleted() {
		return &Step{Done: true, Progress: domain.CalculateProgress(len(answers), len(answers))}, nil
	}

	// The engine call carries its own timeout, independent of the store's.
	res, err := s.engine.NextQuestion(ctx, sessionID, answers)
	if err != nil {
		return nil, err
	}
	if res.Done {
		if err := s.complete(ctx, sessionID); err != nil {
			return nil, err
		}
		return &Step{Done: true, Progress: res.Progress}, nil
	}

	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return &Step{
		Question:   s.view(res.Question, nil),
		Checkpoint: ResolveCheckpoint(cat.Questions, cat.Checkpoints, res.Question),
		Progress:   res.Progress,
	}, nil
}

// Batch is the whole question bank with render descriptors attached.
type Batch struct {
	Questions   []*QuestionView      `json:"questions"`
	Sections    []*domain.Section    `json:"sections"`
	Checkpoints []*domain.Checkpoint `json:"checkpoints"`
}

// Catalog returns the full question bank for batch mode.
func (s *Service) Catalog(ctx context.Context) (*Batch, error) {
	c, err := s.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	b := &Batch{
		Questions:   make([]*QuestionView, 0, len(c.Questions)),
		Sections:    c.Sections,
		Checkpoints: c.Checkpoints,
	}
	if b.Sections == nil {
		b.Sections = []*domain.Section{}
	}
	if b.Checkpoints == nil {
		b.Checkpoints = []*domain.Checkpoint{}
	}
	for _, q := range c.Questions {
		b.Questions = append(b.Questions, s.view(q, nil))
	}
	return b, nil
}
