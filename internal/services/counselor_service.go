package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"loancounselor-backend/internal/integrations/slack"
	"loancounselor-backend/internal/lenders"
	"loancounselor-backend/internal/llm"
	"loancounselor-backend/internal/memory"
	"loancounselor-backend/internal/models"
	"loancounselor-backend/internal/prompts"
	"loancounselor-backend/internal/vectorstore"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	tracerName = "loancounselor-backend/services"

	defaultRequestTimeout = 30 * time.Second
	defaultTopK           = 3
	maxSearchK            = 20

	// Work that outlives the request (persistence, Slack) gets its own budget.
	backgroundTimeout = 10 * time.Second
)

// KnowledgeStore is the retrieval side of the agent.
type KnowledgeStore interface {
	SearchLenders(ctx context.Context, query string, k int) ([]models.Lender, error)
	RetrieveConversations(ctx context.Context, userID, query string, k int) ([]string, error)
	FindSimilarRecommendations(ctx context.Context, details models.StudentDetails, k int) ([]string, error)
	AddConversation(ctx context.Context, userID, message, response string) error
	StoreRecommendation(ctx context.Context, details models.StudentDetails, recommendation string, metadata map[string]string) error
	DeleteUser(ctx context.Context, userID string) (int, error)
}

// ConversationMemory holds each user's running history.
type ConversationMemory interface {
	History(ctx context.Context, userID string) ([]models.ChatMessage, error)
	SaveTurn(ctx context.Context, userID, message, response string) error
	Clear(ctx context.Context, userID string) error
}

// Notifier is told about every answered turn.
type Notifier interface {
	Notify(ctx context.Context, d slack.Digest) error
}

// Compile-time checks against the concrete implementations.
var (
	_ KnowledgeStore     = (*vectorstore.VectorStore)(nil)
	_ ConversationMemory = (*memory.ConversationMemory)(nil)
	_ Notifier           = (*slack.Notifier)(nil)
)

// CounselorOptions wires a CounselorService. Notifier and Tracer are optional.
type CounselorOptions struct {
	Model          llm.ChatModel
	Knowledge      KnowledgeStore
	Memory         ConversationMemory
	Lenders        []models.Lender
	Notifier       Notifier
	Tracer         trace.Tracer
	RequestTimeout time.Duration
	TopK           int
}

// CounselorService is the loan counselor agent.
type CounselorService struct {
	model     llm.ChatModel
	knowledge KnowledgeStore
	memory    ConversationMemory
	lenders   []models.Lender
	notifier  Notifier
	tracer    trace.Tracer
	timeout   time.Duration
	topK      int

	// background tracks in-flight Slack digests.
	background sync.WaitGroup
}

func NewCounselorService(opts CounselorOptions) *CounselorService {
	s := &CounselorService{
		model:     opts.Model,
		knowledge: opts.Knowledge,
		memory:    opts.Memory,
		lenders:   models.CloneLenders(opts.Lenders),
		notifier:  opts.Notifier,
		tracer:    opts.Tracer,
		timeout:   opts.RequestTimeout,
		topK:      opts.TopK,
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.timeout <= 0 {
		s.timeout = defaultRequestTimeout
	}
	if s.topK <= 0 {
		s.topK = defaultTopK
	}
	return s
}

// GetLoanRecommendation answers one student message.
func (s *CounselorService) GetLoanRecommendation(ctx context.Context, details models.StudentDetails, message, userID string) (*models.Recommendation, error) {
	ctx, span := s.tracer.Start(ctx, "counselor.GetLoanRecommendation", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	details = details.Clone()
	details["userId"] = userID

	history, err := s.memory.History(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("[CounselorService] Could not load history, continuing without it")
		history = nil
	}

	inputs, err := s.prepareInputs(ctx, details, message, userID, history)
	if err != nil {
		return nil, spanError(span, err)
	}
	prompt, err := prompts.RenderInitial(*inputs)
	if err != nil {
		return nil, spanError(span, err)
	}

	var answer, queryRecommendation string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := s.model.Predict(gctx, prompt)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrModelCall, err)
		}
		answer = strings.TrimSpace(out)
		return nil
	})
	g.Go(func() error {
		rec, err := s.GetQueryRecommendation(gctx, message, userID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("[CounselorService] Query recommendation failed")
			queryRecommendation = QueryRecommendationFailure(err)
			return nil
		}
		queryRecommendation = rec
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("[CounselorService] GetLoanRecommendation failed")
		return nil, spanError(span, err)
	}

	s.persistTurn(ctx, details, message, answer, userID)
	s.notify(ctx, details, message, answer, userID)

	return &models.Recommendation{Response: answer, QueryRecommendation: queryRecommendation}, nil
}

// prepareInputs gathers every prompt variable concurrently. Retrieval failures leave
// the matching section empty instead of failing the request.
func (s *CounselorService) prepareInputs(ctx context.Context, details models.StudentDetails, message, userID string, history []models.ChatMessage) (*prompts.InitialInputs, error) {
	ctx, span := s.tracer.Start(ctx, "counselor.PrepareInputs", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	in := &prompts.InitialInputs{
		ConversationHistory: memory.Summary(history),
		StudentMessage:      message,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cases, err := s.knowledge.FindSimilarRecommendations(gctx, details, s.topK)
		if err != nil {
			log.Warn().Err(err).Msg("[CounselorService] Similar recommendation lookup failed")
			return nil
		}
		in.SimilarCases = strings.Join(cases, "\n\n")
		return nil
	})
	g.Go(func() error {
		query := LenderSearchQuery(details)
		matches, err := s.knowledge.SearchLenders(gctx, query, s.topK)
		if err != nil {
			log.Warn().Err(err).Str("query", query).Msg("[CounselorService] Lender search failed")
			return nil
		}
		in.MatchingLenders = lenders.FormatLenders(matches)
		return nil
	})
	g.Go(func() error {
		turns, err := s.knowledge.RetrieveConversations(gctx, userID, message, s.topK)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("[CounselorService] Conversation retrieval failed")
			return nil
		}
		in.PastConversations = strings.Join(turns, "\n\n")
		return nil
	})
	g.Go(func() error {
		in.LendersData = lenders.FormatLenders(s.lenders)
		return nil
	})
	g.Go(func() error {
		text, err := details.JSON("  ")
		if err != nil {
			return err
		}
		in.StudentDetails = text
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, spanError(span, err)
	}
	return in, nil
}

// LenderSearchQuery is the text used to look up lenders for a student.
func LenderSearchQuery(details models.StudentDetails) string {
	return details.String("destination_country") + " " + details.String("loan_amount_needed")
}

// persistTurn saves the exchange. Failures are logged; the student already has an answer.
func (s *CounselorService) persistTurn(ctx context.Context, details models.StudentDetails, message, answer, userID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := s.memory.SaveTurn(ctx, userID, message, answer); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("[CounselorService] Failed to save history")
		}
		return nil
	})
	g.Go(func() error {
		if err := s.knowledge.AddConversation(ctx, userID, message, answer); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("[CounselorService] Failed to store conversation turn")
		}
		return nil
	})
	g.Go(func() error {
		md := map[string]string{vectorstore.MetaUserID: userID}
		if err := s.knowledge.StoreRecommendation(ctx, details, answer, md); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("[CounselorService] Failed to store recommendation")
		}
		return nil
	})
	_ = g.Wait()
}

func (s *CounselorService) notify(ctx context.Context, details models.StudentDetails, message, answer, userID string) {
	if s.notifier == nil {
		return
	}
	digest := slack.Digest{
		UserID:      userID,
		StudentName: details.String("name"),
		Destination: details.String("destination_country"),
		Question:    message,
		Response:    answer,
	}
	ctx = context.WithoutCancel(ctx)
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(ctx, backgroundTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, digest); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("[CounselorService] Slack digest failed")
		}
	}()
}

// Wait blocks until every Slack digest started so far has been delivered or has timed out.
func (s *CounselorService) Wait() {
	s.background.Wait()
}

// RecommendationFailure is the text returned to the student in place of an answer.
func RecommendationFailure(err error) string {
	return "An error occurred while generating a recommendation: " + err.Error()
}

// QueryRecommendationFailure replaces the follow-up questions when they could not be generated.
func QueryRecommendationFailure(err error) string {
	return "An error occurred while generating question recommendations: " + err.Error()
}

// GetQueryRecommendation suggests follow-up questions for query.
func (s *CounselorService) GetQueryRecommendation(ctx context.Context, query, userID string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "counselor.GetQueryRecommendation", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	history, err := s.memory.History(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("[CounselorService] Could not load history for query recommendation")
		history = nil
	}
	prompt, err := prompts.RenderQueryRecommendation(prompts.QueryInputs{
		ConversationHistory: memory.Summary(history),
		Query:               query,
	})
	if err != nil {
		return "", spanError(span, err)
	}
	out, err := s.model.Predict(ctx, prompt)
	if err != nil {
		return "", spanError(span, fmt.Errorf("%w: %w", ErrModelCall, err))
	}
	return strings.TrimSpace(out), nil
}

// ResetConversation clears the user's history and stored conversation turns.
// Recommendation records are kept; they carry no conversation text.
func (s *CounselorService) ResetConversation(ctx context.Context, userID string) error {
	var errs []error
	if err := s.memory.Clear(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear history: %w", err))
	}
	n, err := s.knowledge.DeleteUser(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to delete conversation turns: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("[CounselorService] ResetConversation failed")
		return err
	}
	log.Info().Str("user_id", userID).Int("turns_deleted", n).Msg("[CounselorService] Conversation reset")
	return nil
}

// Lenders returns a copy of the catalogue.
func (s *CounselorService) Lenders() []models.Lender {
	return models.CloneLenders(s.lenders)
}

// SearchLenders runs a similarity search over the catalogue. k <= 0 uses the default;
// larger values are capped.
func (s *CounselorService) SearchLenders(ctx context.Context, query string, k int) ([]models.Lender, error) {
	if strings.TrimSpace(query) == "" {
		return nil, validationErrorf("Missing query parameter: q")
	}
	if k <= 0 {
		k = s.topK
	}
	if k > maxSearchK {
		k = maxSearchK
	}
	return s.knowledge.SearchLenders(ctx, query, k)
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
	return err
}
