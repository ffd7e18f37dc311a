package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	apperrors "wapool/internal/errors"
	"wapool/internal/models"

	"github.com/stretchr/testify/require"
)

// memoryRepo is an in-memory Repository returning deep copies like the SQLite store.
type memoryRepo struct {
	mu       sync.Mutex
	order    []string
	apps     map[string]*models.App
	stats    models.Stats
	logs     []models.LogEntry
	nextLog  int64
	runs     []models.StatsDelta
	failSave map[string]error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{apps: make(map[string]*models.App), failSave: make(map[string]error)}
}

func cloneApp(app *models.App) *models.App {
	c := *app
	c.Numbers = make(map[string]*models.Number, len(app.Numbers))
	for k, n := range app.Numbers {
		nc := *n
		c.Numbers[k] = &nc
	}
	return &c
}

func (r *memoryRepo) ListApps(ctx context.Context) ([]*models.App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.App, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneApp(r.apps[id]))
	}
	return out, nil
}

func (r *memoryRepo) GetApp(ctx context.Context, appID string) (*models.App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[appID]
	if !ok {
		return nil, nil
	}
	return cloneApp(app), nil
}

func (r *memoryRepo) SaveApp(ctx context.Context, app *models.App) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.apps[app.AppID]
	stored := cloneApp(app)
	if ok {
		stored.Numbers = existing.Numbers
		stored.CreatedAt = existing.CreatedAt
	} else {
		r.order = append(r.order, app.AppID)
		stored.CreatedAt = time.Now().UTC()
	}
	r.apps[app.AppID] = stored
	return !ok, nil
}

func (r *memoryRepo) DeleteApp(ctx context.Context, appID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.apps[appID]; !ok {
		return false, nil
	}
	delete(r.apps, appID)
	for i, id := range r.order {
		if id == appID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (r *memoryRepo) UpdateApp(ctx context.Context, appID string, mutate func(app *models.App) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failSave[appID]; err != nil {
		return err
	}
	app, ok := r.apps[appID]
	if !ok {
		return apperrors.NewNotFoundError("app", appID)
	}
	working := cloneApp(app)
	if err := mutate(working); err != nil {
		return err
	}
	r.apps[appID] = working
	return nil
}

func (r *memoryRepo) GetStats(ctx context.Context) (models.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats, nil
}

func (r *memoryRepo) RecordRun(ctx context.Context, delta models.StatsDelta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalChecks++
	r.stats.TotalBans += int64(delta.Bans)
	r.stats.TotalRecoveries += int64(delta.Recoveries)
	finished := delta.FinishedAt
	r.stats.LastHealthCheck = &finished
	r.runs = append(r.runs, delta)
	return nil
}

func (r *memoryRepo) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextLog++
	entry.ID = r.nextLog
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *memoryRepo) ListLogs(ctx context.Context, filter models.LogFilter) ([]models.LogEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LogEntry
	for _, e := range r.logs {
		if filter.Type == "" || e.Type == filter.Type {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

func (r *memoryRepo) ClearLogs(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = nil
	return nil
}

func (r *memoryRepo) logsOfType(t models.LogType) []models.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LogEntry
	for _, e := range r.logs {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *memoryRepo) number(appID, number string) models.Number {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.apps[appID].Numbers[number]
	if !ok {
		return models.Number{}
	}
	return *n
}

func (r *memoryRepo) seed(t *testing.T, app *models.App, numbers ...*models.Number) {
	t.Helper()
	_, err := r.SaveApp(context.Background(), app)
	require.NoError(t, err)
	require.NoError(t, r.UpdateApp(context.Background(), app.AppID, func(a *models.App) error {
		for _, n := range numbers {
			nc := *n
			a.Numbers[n.Number] = &nc
		}
		return nil
	}))
}

// stubVerifier returns queued verdicts per app, repeating the last one.
type stubVerifier struct {
	mu       sync.Mutex
	method   VerificationMethod
	verdicts map[string][]Verdict
	errs     map[string]error
	calls    map[string]int
	block    chan struct{}
	started  chan struct{}
}

func newStubVerifier() *stubVerifier {
	return &stubVerifier{
		method:   MethodWABAStatus,
		verdicts: make(map[string][]Verdict),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (s *stubVerifier) Method() VerificationMethod { return s.method }

func (s *stubVerifier) Verify(ctx context.Context, app *models.App) (Verdict, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[app.AppID]++
	if err := s.errs[app.AppID]; err != nil {
		return Verdict{}, err
	}
	queue := s.verdicts[app.AppID]
	if len(queue) == 0 {
		return Verdict{}, errors.New("no verdict queued")
	}
	v := queue[0]
	if len(queue) > 1 {
		s.verdicts[app.AppID] = queue[1:]
	}
	return v, nil
}

func (s *stubVerifier) callCount(appID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[appID]
}

func activeVerdict() Verdict {
	return Verdict{Active: true, Method: MethodWABAStatus}
}

func inactiveVerdict(code, message string) Verdict {
	return Verdict{Active: false, Error: message, ErrorCode: code, Method: MethodWABAStatus}
}

type testHarness struct {
	repo       *memoryRepo
	verifier   *stubVerifier
	notifier   *recordingNotifier
	dispatcher *Dispatcher
	audit      *AuditLog
	checker    *HealthChecker
}

func newHarness(t *testing.T, cfg models.HealthCheckConfig) *testHarness {
	t.Helper()
	logger := quietLogger()

	dispatcher, err := NewDispatcher(4, logger)
	require.NoError(t, err)
	t.Cleanup(dispatcher.Close)

	repo := newMemoryRepo()
	verifier := newStubVerifier()
	notifier := &recordingNotifier{enabled: true}
	audit := NewAuditLog(repo, NewLogHub(), dispatcher, logger, false)
	events := NewEventPublisher(audit, notifier, dispatcher, time.Second, logger)

	checker := NewHealthChecker(cfg, HealthCheckerDeps{
		Repo:     repo,
		Verifier: verifier,
		Events:   events,
		Audit:    audit,
		Logger:   logger,
	})
	return &testHarness{
		repo:       repo,
		verifier:   verifier,
		notifier:   notifier,
		dispatcher: dispatcher,
		audit:      audit,
		checker:    checker,
	}
}

// run executes one cycle and waits for its side effects.
func (h *testHarness) run(t *testing.T) *RunSummary {
	t.Helper()
	summary, err := h.checker.Run(context.Background(), TriggerManual)
	require.NoError(t, err)
	h.dispatcher.Wait()
	return summary
}

type recordingNotifier struct {
	mu      sync.Mutex
	enabled bool
	err     error
	sent    []Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) Enabled() bool { return n.enabled }

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Title)
	}
	return out
}
