package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-evaluator/internal/evaluation"
	"github.com/noah-isme/gema-evaluator/internal/observability"
)

// Progress notices shown while an evaluation runs, in order.
const (
	NoticeInitializing = "▶ Initializing analysis..."
	NoticeUploading    = "▶ Uploading submission files..."
	NoticeSending      = "▶ Sending request to AI model..."
	NoticeComplete     = "▶ Analysis complete. Rendering report..."
)

const (
	progressBufferSize = 16
	lockMargin         = 30 * time.Second
	defaultSessionTTL  = 24 * time.Hour
)

// ErrSubmissionInFlight indicates the session already has an evaluation running.
var ErrSubmissionInFlight = errors.New("an evaluation is already in progress")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Evaluator submits a console request. *evalclient.Client satisfies it.
type Evaluator interface {
	Submit(ctx context.Context, prompt string, submissionA, submissionB evaluation.File) (evaluation.Result, error)
}

// ConsoleState is everything the console renders for one browser session.
type ConsoleState struct {
	Loading   bool                `json:"loading"`
	Log       []string            `json:"log"`
	Result    *evaluation.Result  `json:"result,omitempty"`
	Verdict   *evaluation.Verdict `json:"verdict,omitempty"`
	Error     string              `json:"error,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// ProgressEvent is streamed to progress subscribers.
type ProgressEvent struct {
	Message string    `json:"message,omitempty"`
	Done    bool      `json:"done"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// ConsoleSubmission is a form submission from the console.
type ConsoleSubmission struct {
	CorrectPrompt string
	SubmissionA   evaluation.File
	SubmissionB   evaluation.File
}

// ConsoleServiceConfig tunes the console.
type ConsoleServiceConfig struct {
	RequestTimeout time.Duration
	NoticeDelay    time.Duration
	SessionTTL     time.Duration
}

// ConsoleService owns per-session console state and drives evaluations.
type ConsoleService interface {
	State(sessionID string) ConsoleState
	Submit(ctx context.Context, sessionID string, submission ConsoleSubmission) (ConsoleState, error)
	Subscribe(sessionID string) (<-chan ProgressEvent, func())
}

type consoleService struct {
	evaluator Evaluator
	redis     *redis.Client
	cfg       ConsoleServiceConfig
	logger    zerolog.Logger
	tracer    trace.Tracer

	mu       sync.Mutex
	sessions map[string]*ConsoleState
	inflight map[string]struct{}

	broker *progressBroker
}

type progressBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan ProgressEvent]struct{}
}

// NewConsoleService constructs the console service. redisClient is optional.
func NewConsoleService(evaluator Evaluator, redisClient *redis.Client, cfg ConsoleServiceConfig, logger zerolog.Logger) ConsoleService {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	return &consoleService{
		evaluator: evaluator,
		redis:     redisClient,
		cfg:       cfg,
		logger:    logger.With().Str("component", "console_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-evaluator/internal/service/console"),
		sessions:  make(map[string]*ConsoleState),
		inflight:  make(map[string]struct{}),
		broker: &progressBroker{
			subscribers: make(map[string]map[chan ProgressEvent]struct{}),
		},
	}
}

func (s *consoleService) State(sessionID string) ConsoleState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return ConsoleState{Log: []string{}}
	}
	return state.snapshot()
}

func (s *consoleService) Submit(ctx context.Context, sessionID string, submission ConsoleSubmission) (ConsoleState, error) {
	ctx, span := s.tracer.Start(ctx, "console.submit")
	defer span.End()

	logger := s.logger.With().Str("session_id", sessionID).Logger()

	release, err := s.acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSubmissionInFlight) {
			observability.ConsoleSubmissions().WithLabelValues("in_flight").Inc()
			span.SetStatus(codes.Error, "in flight")
			return s.State(sessionID), err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock failed")
		return s.State(sessionID), err
	}
	defer release()

	request, err := evaluation.NewRequest(submission.CorrectPrompt, submission.SubmissionA, submission.SubmissionB)
	if err != nil {
		observability.ConsoleSubmissions().WithLabelValues("validation").Inc()
		span.SetStatus(codes.Error, "validation failed")
		state := s.update(sessionID, func(state *ConsoleState) {
			state.Result = nil
			state.Verdict = nil
			state.Error = "Error: " + evaluation.ValidationMessage
		})
		return state, err
	}

	s.update(sessionID, func(state *ConsoleState) {
		state.Loading = true
		state.Log = []string{}
		state.Result = nil
		state.Verdict = nil
		state.Error = ""
	})

	s.notice(ctx, sessionID, NoticeInitializing, 0)
	s.notice(ctx, sessionID, NoticeUploading, s.cfg.NoticeDelay)
	s.notice(ctx, sessionID, NoticeSending, s.cfg.NoticeDelay)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	result, err := s.evaluator.Submit(callCtx, request.CorrectPrompt, request.SubmissionA, request.SubmissionB)
	if err != nil {
		observability.ConsoleSubmissions().WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		logger.Warn().Err(err).Msg("console evaluation failed")

		message := fmt.Sprintf("An error occurred: %s", err.Error())
		state := s.update(sessionID, func(state *ConsoleState) {
			state.Loading = false
			state.Result = nil
			state.Verdict = nil
			state.Error = message
		})
		s.broker.broadcast(sessionID, ProgressEvent{Done: true, Error: message, At: time.Now().UTC()})
		return state, err
	}

	s.notice(ctx, sessionID, NoticeComplete, s.cfg.NoticeDelay)

	verdict := evaluation.Interpret(result)
	state := s.update(sessionID, func(state *ConsoleState) {
		state.Loading = false
		state.Result = &result
		state.Verdict = &verdict
		state.Error = ""
	})
	s.broker.broadcast(sessionID, ProgressEvent{Done: true, At: time.Now().UTC()})

	observability.ConsoleSubmissions().WithLabelValues("success").Inc()
	span.SetAttributes(attribute.String("console.winner", string(verdict.Winner)))
	span.SetStatus(codes.Ok, "evaluated")
	logger.Info().Str("decision_type", string(result.DecisionType)).Msg("console evaluation rendered")

	return state, nil
}

func (s *consoleService) Subscribe(sessionID string) (<-chan ProgressEvent, func()) {
	channel := make(chan ProgressEvent, progressBufferSize)

	// Notices are appended and broadcast under s.mu, so a subscriber joining
	// mid-run sees every notice exactly once.
	s.mu.Lock()
	if state, ok := s.sessions[sessionID]; ok && state.Loading {
		for _, message := range state.Log {
			select {
			case channel <- ProgressEvent{Message: message, At: state.UpdatedAt}:
			default:
			}
		}
	}
	s.broker.subscribe(sessionID, channel)
	s.mu.Unlock()
	observability.ProgressClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(sessionID, channel)
			observability.ProgressClientsActive().Dec()
		})
	}

	return channel, cleanup
}

// notice waits delay, appends message to the session log and fans it out.
func (s *consoleService) notice(ctx context.Context, sessionID, message string, delay time.Duration) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.sessionLocked(sessionID, now, func(state *ConsoleState) {
		state.Log = append(state.Log, message)
	})
	s.broker.broadcast(sessionID, ProgressEvent{Message: message, At: now})
}

func (s *consoleService) update(sessionID string, mutate func(state *ConsoleState)) ConsoleState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessionLocked(sessionID, time.Now().UTC(), mutate).snapshot()
}

// sessionLocked applies mutate to the session, creating it when absent. s.mu must be held.
func (s *consoleService) sessionLocked(sessionID string, now time.Time, mutate func(state *ConsoleState)) *ConsoleState {
	s.pruneLocked(now)

	state, ok := s.sessions[sessionID]
	if !ok {
		state = &ConsoleState{Log: []string{}}
		s.sessions[sessionID] = state
	}
	mutate(state)
	state.UpdatedAt = now

	return state
}

func (s *consoleService) pruneLocked(now time.Time) {
	for id, state := range s.sessions {
		if _, running := s.inflight[id]; running {
			continue
		}
		if now.Sub(state.UpdatedAt) > s.cfg.SessionTTL {
			delete(s.sessions, id)
		}
	}
}

// acquire takes the single-flight guard for a session.
func (s *consoleService) acquire(ctx context.Context, sessionID string) (func(), error) {
	s.mu.Lock()
	if _, running := s.inflight[sessionID]; running {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	s.inflight[sessionID] = struct{}{}
	s.mu.Unlock()

	releaseLocal := func() {
		s.mu.Lock()
		delete(s.inflight, sessionID)
		s.mu.Unlock()
	}

	if s.redis == nil {
		return releaseLocal, nil
	}

	key := lockKey(sessionID)
	token := uuid.NewString()
	ok, err := s.redis.SetNX(ctx, key, token, s.cfg.RequestTimeout+lockMargin).Result()
	if err != nil {
		releaseLocal()
		return nil, fmt.Errorf("acquire console lock: %w", err)
	}
	if !ok {
		releaseLocal()
		return nil, ErrSubmissionInFlight
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, s.redis, []string{key}, token).Err(); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to release console lock")
		}
		releaseLocal()
	}, nil
}

func lockKey(sessionID string) string {
	return fmt.Sprintf("console:inflight:%s", sessionID)
}

func (c *ConsoleState) snapshot() ConsoleState {
	clone := *c
	clone.Log = append([]string{}, c.Log...)
	if c.Result != nil {
		result := *c.Result
		clone.Result = &result
	}
	if c.Verdict != nil {
		verdict := *c.Verdict
		clone.Verdict = &verdict
	}
	return clone
}

func (b *progressBroker) subscribe(sessionID string, ch chan ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sessionID]; !exists {
		b.subscribers[sessionID] = make(map[chan ProgressEvent]struct{})
	}
	b.subscribers[sessionID][ch] = struct{}{}
}

func (b *progressBroker) unsubscribe(sessionID string, ch chan ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[sessionID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, sessionID)
		}
	}
}

func (b *progressBroker) broadcast(sessionID string, event ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[sessionID] {
		select {
		case ch <- event:
		default:
		}
	}
}
