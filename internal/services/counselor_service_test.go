package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"loancounselor-backend/internal/integrations/slack"
	"loancounselor-backend/internal/lenders"
	"loancounselor-backend/internal/llm/llmtest"
	"loancounselor-backend/internal/memory"
	"loancounselor-backend/internal/models"
	"loancounselor-backend/internal/store"
	storemem "loancounselor-backend/internal/store/memory"
	"loancounselor-backend/internal/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// fakeModel answers counseling prompts and follow-up prompts differently.
type fakeModel struct {
	mu       sync.Mutex
	prompts  []string
	answer   string
	followUp string
	err      error
	queryErr error
	block    bool
}

func (f *fakeModel) Predict(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if strings.Contains(prompt, "follow-up questions") {
		if f.queryErr != nil {
			return "", f.queryErr
		}
		return f.followUp, nil
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeModel) counselingPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.prompts {
		if strings.HasSuffix(p, "Counselor:") {
			out = append(out, p)
		}
	}
	return out
}

type fakeNotifier struct {
	digests chan slack.Digest
}

func (f *fakeNotifier) Notify(_ context.Context, d slack.Digest) error {
	f.digests <- d
	return nil
}

type slowNotifier struct {
	delay     time.Duration
	delivered atomic.Int32
}

func (n *slowNotifier) Notify(ctx context.Context, _ slack.Digest) error {
	select {
	case <-time.After(n.delay):
		n.delivered.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type testEnv struct {
	svc      *CounselorService
	model    *fakeModel
	store    *storemem.MemoryStore
	memory   *memory.ConversationMemory
	recorder *tracetest.SpanRecorder
}

func newTestEnv(t *testing.T, model *fakeModel, opts CounselorOptions) *testEnv {
	t.Helper()
	st := storemem.NewMemoryStore()
	vs := vectorstore.New(st, llmtest.NewHashingEmbedder(64))
	require.NoError(t, vs.IndexLenders(context.Background(), lenders.Default()))
	mem := memory.New(st)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	opts.Model = model
	if opts.Knowledge == nil {
		opts.Knowledge = vs
	}
	opts.Memory = mem
	opts.Lenders = lenders.Default()
	opts.Tracer = tp.Tracer("test")
	return &testEnv{svc: NewCounselorService(opts), model: model, store: st, memory: mem, recorder: recorder}
}

func student() models.StudentDetails {
	return models.StudentDetails{
		"name":                "Asha",
		"origin_country":      "India",
		"destination_country": "Germany",
		"loan_amount_needed":  float64(40000),
		"course_of_study":     "MSc Data Science",
	}
}

func TestGetLoanRecommendation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &fakeModel{answer: "  Axis Bank suits you.  ", followUp: "1. What is the tenure?"}, CounselorOptions{})

	rec, err := env.svc.GetLoanRecommendation(ctx, student(), "Which loan should I take?", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Axis Bank suits you.", rec.Response)
	assert.Equal(t, "1. What is the tenure?", rec.QueryRecommendation)

	prompts := env.model.counselingPrompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Axis Bank:\n- Interest Rate: 10.5%\n- Maximum Amount: INR 20,000,000\n")
	assert.Contains(t, prompts[0], `"userId": "u1"`)
	assert.Contains(t, prompts[0], `"destination_country": "Germany"`)
	assert.Contains(t, prompts[0], "Student: Which loan should I take?")

	history, err := env.memory.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "Axis Bank suits you.", history[1].Content)

	turns, err := env.store.SearchDocuments(ctx, store.CollectionConversations, make([]float32, 64), 10, map[string]string{vectorstore.MetaUserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, turns, 1)
	recs, err := env.store.SearchDocuments(ctx, store.CollectionRecommendations, make([]float32, 64), 10, map[string]string{vectorstore.MetaUserID: "u1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Axis Bank suits you.", recs[0].Metadata[vectorstore.MetaResult])

	names := map[string]bool{}
	for _, s := range env.recorder.Ended() {
		names[s.Name()] = true
	}
	assert.True(t, names["counselor.GetLoanRecommendation"])
	assert.True(t, names["counselor.PrepareInputs"])
	assert.True(t, names["counselor.GetQueryRecommendation"])
}

func TestSecondTurnSeesHistory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &fakeModel{answer: "Consider Axis Bank.", followUp: "1. Next?"}, CounselorOptions{})

	_, err := env.svc.GetLoanRecommendation(ctx, student(), "first question", "u1")
	require.NoError(t, err)
	_, err = env.svc.GetLoanRecommendation(ctx, student(), "second question", "u1")
	require.NoError(t, err)

	prompts := env.model.counselingPrompts()
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "user: first question\nassistant: Consider Axis Bank.")
	assert.Contains(t, prompts[1], "student: first question\ncounselor: Consider Axis Bank.")
	assert.NotContains(t, prompts[0], "first question\nassistant")
}

func TestModelFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("upstream 500")
	env := newTestEnv(t, &fakeModel{err: boom, followUp: "1. Q"}, CounselorOptions{})

	_, err := env.svc.GetLoanRecommendation(ctx, student(), "hi", "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelCall)
	assert.ErrorIs(t, err, boom)

	history, err := env.memory.History(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestQueryRecommendationFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t, &fakeModel{answer: "ok", queryErr: errors.New("rate limited")}, CounselorOptions{})

	rec, err := env.svc.GetLoanRecommendation(context.Background(), student(), "hi", "u1")
	require.NoError(t, err)
	assert.Equal(t, "ok", rec.Response)
	assert.Equal(t, "An error occurred while generating question recommendations: model call failed: rate limited", rec.QueryRecommendation)
}

func TestFailureMessages(t *testing.T) {
	err := fmt.Errorf("%w: upstream 500", ErrModelCall)
	assert.Equal(t, "An error occurred while generating a recommendation: model call failed: upstream 500", RecommendationFailure(err))
	assert.Equal(t, "An error occurred while generating question recommendations: model call failed: upstream 500", QueryRecommendationFailure(err))
}

func TestRequestTimeout(t *testing.T) {
	env := newTestEnv(t, &fakeModel{block: true}, CounselorOptions{RequestTimeout: 20 * time.Millisecond})

	_, err := env.svc.GetLoanRecommendation(context.Background(), student(), "hi", "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrModelCall)
}

// failingKnowledge fails every retrieval and write.
type failingKnowledge struct{}

var errKnowledge = errors.New("vector store down")

func (failingKnowledge) SearchLenders(context.Context, string, int) ([]models.Lender, error) {
	return nil, errKnowledge
}
func (failingKnowledge) RetrieveConversations(context.Context, string, string, int) ([]string, error) {
	return nil, errKnowledge
}
func (failingKnowledge) FindSimilarRecommendations(context.Context, models.StudentDetails, int) ([]string, error) {
	return nil, errKnowledge
}
func (failingKnowledge) AddConversation(context.Context, string, string, string) error {
	return errKnowledge
}
func (failingKnowledge) StoreRecommendation(context.Context, models.StudentDetails, string, map[string]string) error {
	return errKnowledge
}
func (failingKnowledge) DeleteUser(context.Context, string) (int, error) { return 0, errKnowledge }

func TestRetrievalFailuresDegrade(t *testing.T) {
	env := newTestEnv(t, &fakeModel{answer: "still here", followUp: "1. Q"}, CounselorOptions{Knowledge: failingKnowledge{}})

	rec, err := env.svc.GetLoanRecommendation(context.Background(), student(), "hi", "u1")
	require.NoError(t, err)
	assert.Equal(t, "still here", rec.Response)

	prompts := env.model.counselingPrompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Lenders most relevant to this student:\nNone found.")

	// History is still kept even though the vector store is unavailable.
	history, err := env.memory.History(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	err = env.svc.ResetConversation(context.Background(), "u1")
	assert.ErrorIs(t, err, errKnowledge)
}

func TestNotifierReceivesDigest(t *testing.T) {
	notifier := &fakeNotifier{digests: make(chan slack.Digest, 1)}
	env := newTestEnv(t, &fakeModel{answer: "Axis Bank.", followUp: "1. Q"}, CounselorOptions{Notifier: notifier})

	_, err := env.svc.GetLoanRecommendation(context.Background(), student(), "Which lender?", "u9")
	require.NoError(t, err)

	select {
	case d := <-notifier.digests:
		assert.Equal(t, slack.Digest{UserID: "u9", StudentName: "Asha", Destination: "Germany", Question: "Which lender?", Response: "Axis Bank."}, d)
	case <-time.After(2 * time.Second):
		t.Fatal("digest was not sent")
	}
}

func TestWaitDrainsDigests(t *testing.T) {
	notifier := &slowNotifier{delay: 50 * time.Millisecond}
	env := newTestEnv(t, &fakeModel{answer: "Axis Bank.", followUp: "1. Q"}, CounselorOptions{Notifier: notifier})

	for _, user := range []string{"u1", "u2"} {
		_, err := env.svc.GetLoanRecommendation(context.Background(), student(), "Which lender?", user)
		require.NoError(t, err)
	}
	env.svc.Wait()
	assert.EqualValues(t, 2, notifier.delivered.Load())
}

func TestResetConversation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &fakeModel{answer: "ok", followUp: "1. Q"}, CounselorOptions{})

	_, err := env.svc.GetLoanRecommendation(ctx, student(), "hi", "u1")
	require.NoError(t, err)
	require.NoError(t, env.svc.ResetConversation(ctx, "u1"))

	history, err := env.memory.History(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, history)

	turns, err := env.store.SearchDocuments(ctx, store.CollectionConversations, make([]float32, 64), 10, nil)
	require.NoError(t, err)
	assert.Empty(t, turns)

	recs, err := env.store.SearchDocuments(ctx, store.CollectionRecommendations, make([]float32, 64), 10, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSearchLenders(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, &fakeModel{}, CounselorOptions{})

	_, err := env.svc.SearchLenders(ctx, "  ", 3)
	assert.ErrorIs(t, err, ErrValidation)

	got, err := env.svc.SearchLenders(ctx, "Axis Bank India", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Axis Bank", got[0].Name)

	all := env.svc.Lenders()
	all[0].Name = "changed"
	assert.Equal(t, "Axis Bank", env.svc.Lenders()[0].Name)
}

func TestLendersDoesNotShareKeyPoints(t *testing.T) {
	env := newTestEnv(t, &fakeModel{}, CounselorOptions{})

	all := env.svc.Lenders()
	require.NotEmpty(t, all[0].KeyPoints)
	want := all[0].KeyPoints[0]
	all[0].KeyPoints[0] = "changed"
	all[0].KeyPoints = append(all[0].KeyPoints, "extra")

	again := env.svc.Lenders()
	assert.Equal(t, want, again[0].KeyPoints[0])
	assert.NotContains(t, again[0].KeyPoints, "extra")
}

func TestServiceCopiesLenderCatalogue(t *testing.T) {
	catalog := lenders.Default()
	want := catalog[0].KeyPoints[0]
	svc := NewCounselorService(CounselorOptions{Lenders: catalog})

	catalog[0].KeyPoints[0] = "changed"
	assert.Equal(t, want, svc.Lenders()[0].KeyPoints[0])
}

func TestLenderSearchQuery(t *testing.T) {
	assert.Equal(t, "Germany 40000", LenderSearchQuery(student()))
}
