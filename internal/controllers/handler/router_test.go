package handler

import (
	"context"
	"testing"

	"possync/internal/application/entity"
	"possync/internal/application/service"
	"possync/pkg/config"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type fakeUseCase struct{}

func (f *fakeUseCase) LogCRUDOperation(ctx context.Context, table string, changeType entity.ChangeType, recordID string, data map[string]any) (int, error) {
	return 0, nil
}
func (f *fakeUseCase) SyncStatus(ctx context.Context) (entity.SyncStatus, error) {
	return entity.SyncStatus{}, nil
}
func (f *fakeUseCase) TriggerPush(ctx context.Context) (service.PushSummary, error) {
	return service.PushSummary{}, nil
}
func (f *fakeUseCase) TriggerPull(ctx context.Context) (service.PullSummary, error) {
	return service.PullSummary{}, nil
}
func (f *fakeUseCase) TriggerRetry(ctx context.Context) (service.RetrySummary, error) {
	return service.RetrySummary{}, nil
}
func (f *fakeUseCase) TriggerCleanup(ctx context.Context) (service.CleanupSummary, error) {
	return service.CleanupSummary{}, nil
}
func (f *fakeUseCase) RunSyncCycle(ctx context.Context, trigger string) error { return nil }
func (f *fakeUseCase) HealthCheck(ctx context.Context) error                  { return nil }

// registeredPaths records both "METHOD /path" and the bare path; middleware
// mounted with Use is registered under its own pseudo-method.
func registeredPaths(app *fiber.App) map[string]bool {
	paths := make(map[string]bool)
	for _, routes := range app.Stack() {
		for _, route := range routes {
			paths[route.Method+" "+route.Path] = true
			paths[route.Path] = true
		}
	}
	return paths
}

func TestRegisterRouterExposesAllEndpoints(t *testing.T) {
	app := fiber.New()
	h := NewSyncHandler(&fakeUseCase{}, zap.NewNop().Sugar())
	NewRouter(h, app, &config.Config{}, zap.NewNop().Sugar()).RegisterRouter()

	paths := registeredPaths(app)
	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"/swagger/*",
		"POST /api/crud-log",
		"GET /api/sync/status",
		"POST /api/sync/push",
		"POST /api/sync/pull",
		"POST /api/sync/retry",
		"POST /api/sync/cleanup",
	} {
		if !paths[want] {
			t.Errorf("route %s is not registered", want)
		}
	}
}
