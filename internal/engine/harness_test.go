package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/rendis/lendflow/internal/actions"
	"github.com/rendis/lendflow/internal/expressions"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/internal/streaming"
	"github.com/rendis/lendflow/pkg/schema"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// mailServer is a stand-in mail dispatch API.
type mailServer struct {
	*httptest.Server
	status atomic.Int32

	mu   sync.Mutex
	sent []actions.Email
}

func newMailServer(t *testing.T) *mailServer {
	t.Helper()
	m := &mailServer{}
	m.status.Store(http.StatusOK)
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var email actions.Email
		if err := json.NewDecoder(r.Body).Decode(&email); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.sent = append(m.sent, email)
		m.mu.Unlock()
		w.WriteHeader(int(m.status.Load()))
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mailServer) emails() []actions.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]actions.Email(nil), m.sent...)
}

type harness struct {
	store      *store.LibSQLStore
	clock      *clockwork.FakeClock
	hub        *streaming.MemoryHub
	mail       *mailServer
	registry   *actions.Registry
	dispatcher *Dispatcher
	ledger     *Ledger
	executor   *Executor
	sweeper    *Sweeper
}

func newTestStore(t *testing.T) *store.LibSQLStore {
	t.Helper()
	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithTimeout(t, 0)
}

// newHarnessWithTimeout builds a harness whose dispatcher bounds each action
// by timeout (0 keeps the default).
func newHarnessWithTimeout(t *testing.T, timeout time.Duration) *harness {
	t.Helper()
	h := &harness{
		store:    newTestStore(t),
		clock:    clockwork.NewFakeClockAt(t0),
		hub:      streaming.NewMemoryHub(),
		mail:     newMailServer(t),
		registry: actions.NewRegistry(),
	}

	chain, err := actions.RegisterBuiltins(h.registry, actions.BuiltinDeps{
		Notifications: h.store,
		Deals:         h.store,
		Mailer: actions.NewHTTPMailer(actions.MailerConfig{
			APIURL: h.mail.URL,
			APIKey: "test-key",
			From:   "workflows@lendflow.test",
		}, actions.HTTPConfig{}),
		Clock: h.clock,
	})
	require.NoError(t, err)

	conditions, err := expressions.NewConditionEvaluator()
	require.NoError(t, err)

	h.dispatcher = NewDispatcher(h.registry, DispatcherConfig{ActionTimeout: timeout, Clock: h.clock})
	h.ledger = NewLedger(h.store, h.hub, h.clock, nil)
	h.executor = NewExecutor(h.store, h.ledger, h.dispatcher, ExecutorConfig{
		Conditions: conditions,
		Hub:        h.hub,
		Clock:      h.clock,
	})
	chain.SetRunner(h.executor.ChainRunner())
	h.sweeper = NewSweeper(h.store, h.dispatcher, h.ledger, SweeperConfig{Hub: h.hub, Clock: h.clock})
	return h
}

func act(t *testing.T, id string, typ schema.ActionType, cfg any, delayMinutes int) schema.ActionDefinition {
	t.Helper()
	var raw json.RawMessage
	if cfg != nil {
		b, err := json.Marshal(cfg)
		require.NoError(t, err)
		raw = b
	}
	return schema.ActionDefinition{ID: id, Type: typ, Config: raw, DelayMinutes: delayMinutes}
}

func (h *harness) workflow(t *testing.T, active bool, trigger schema.TriggerType, triggerConfig map[string]any, acts ...schema.ActionDefinition) *store.Workflow {
	t.Helper()
	wf := &store.Workflow{
		ID: uuid.New().String(),
		WorkflowDefinition: schema.WorkflowDefinition{
			Name:          "rule",
			TriggerType:   trigger,
			TriggerConfig: triggerConfig,
			Actions:       acts,
		},
		Active:    active,
		CreatedAt: h.clock.Now(),
	}
	require.NoError(t, h.store.CreateWorkflow(context.Background(), wf))
	return wf
}

func (h *harness) activeWorkflow(t *testing.T, acts ...schema.ActionDefinition) *store.Workflow {
	t.Helper()
	return h.workflow(t, true, schema.TriggerDealStageChange, nil, acts...)
}

func (h *harness) run(t *testing.T, runID string) *store.Run {
	t.Helper()
	run, err := h.ledger.Get(context.Background(), runID)
	require.NoError(t, err)
	return run
}

func (h *harness) runsOf(t *testing.T, workflowID string) []*store.Run {
	t.Helper()
	runs, err := h.store.ListRuns(context.Background(), store.RunFilter{WorkflowID: workflowID})
	require.NoError(t, err)
	return runs
}
