package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/evalboard/internal/adapters/repository"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeClient answers as subjects and scores as raters.
type fakeClient struct {
	mu      sync.Mutex
	scores  map[string]string
	failing map[string]bool
	calls   map[string]int
	// delay slows every answer from a subject; raters stay fast.
	delay time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		scores:  map[string]string{"judge1": "4", "judge2": "2"},
		failing: map[string]bool{},
		calls:   map[string]int{},
	}
}

func (c *fakeClient) Generate(ctx context.Context, prompt string, who model.Subject) (string, error) {
	c.mu.Lock()
	c.calls[who.Name]++
	failing := c.failing[who.Name]
	score, isRater := c.scores[who.Name]
	delay := c.delay
	c.mu.Unlock()

	if failing {
		return "", errors.New("model unreachable")
	}
	if isRater {
		return score, nil
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "answer from " + who.Name + " to " + strings.SplitN(prompt, "\n", 2)[0], nil
}

func (c *fakeClient) fail(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing[name] = true
}

func (c *fakeClient) slow(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
}

func (c *fakeClient) callCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

type fixture struct {
	store    *repository.MemoryStore
	alpha    model.Subject
	beta     model.Subject
	judge1   model.Subject
	judge2   model.Subject
	subjQ    model.Question
	objQ     model.Question
	raterSet model.RaterSet
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	st := repository.NewMemoryStore()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(st.UpsertDimension(ctx, model.Dimension{ID: 1, Name: "safety", Level: model.LevelCategory}))
	must(st.UpsertDimension(ctx, model.Dimension{ID: 2, Name: "bias", Level: model.LevelSubCategory, ParentID: 1}))
	must(st.UpsertDimension(ctx, model.Dimension{ID: 3, Name: "gender", Level: model.LevelLeaf, ParentID: 2}))

	f := fixture{store: st}
	var err error
	f.alpha, err = st.UpsertSubject(ctx, model.Subject{Name: "alpha"})
	must(err)
	f.beta, err = st.UpsertSubject(ctx, model.Subject{Name: "beta"})
	must(err)
	f.judge1, err = st.UpsertSubject(ctx, model.Subject{Name: "judge1"})
	must(err)
	f.judge2, err = st.UpsertSubject(ctx, model.Subject{Name: "judge2"})
	must(err)
	f.subjQ, err = st.UpsertQuestion(ctx, model.Question{DimensionID: 3, Type: model.Subjective, Content: "Is this fair?"})
	must(err)
	f.objQ, err = st.UpsertQuestion(ctx, model.Question{DimensionID: 3, Type: model.Objective, Content: "2+2?", ReferenceAnswer: "4"})
	must(err)
	f.raterSet = model.RaterSet{
		model.Subjective: {"judge1", "judge2"},
		model.Objective:  {"judge1"},
	}
	return f
}

// eventually polls cond until it holds or the deadline passes.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
