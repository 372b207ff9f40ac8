package application

import (
	"context"
	"fmt"

	"possync/internal/application/common"
	"possync/internal/application/mirror"
	"possync/internal/application/outbox"
	"possync/internal/application/repo"
	"possync/internal/application/service"
	use_cases "possync/internal/application/use-cases"
	"possync/internal/controllers/cron"
	"possync/internal/controllers/handler"
	"possync/pkg/circuit"
	"possync/pkg/config"
	"possync/pkg/db"
	"possync/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type App struct {
	ctx            context.Context
	conf           *config.Config
	logger         *zap.SugaredLogger
	postgres       *db.Postgres
	httpServer     *fiber.App
	cronController *cron.Controller
	service        service.Service
}

func NewApp(
	ctx context.Context,
	conf *config.Config,
	logger *zap.SugaredLogger,
	postgres *db.Postgres,
	httpServer *fiber.App,
	m *metrics.Metrics) (*App, error) {
	logger.Infof("starting POS sync service version %s", common.Version)

	outboxStore, err := outbox.NewStore(conf.Data.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("outbox store: %w", err)
	}
	mirrorStore, err := mirror.NewStore(conf.Data.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("mirror store: %w", err)
	}

	remote := repo.NewRemote(postgres, conf.Sync.TransientRetries, conf.Sync.CleanupWorkers, &m.Repo, logger)
	breaker := circuit.New(conf.Sync.OfflineCooldown, conf.Sync.ProbeInterval)

	srv := service.NewService(outboxStore, mirrorStore, remote, breaker, &conf.Sync, conf.Data.Dir, &m.Sync, logger)
	uc := use_cases.NewUseCase(srv, logger, conf)
	h := handler.NewSyncHandler(uc, logger)
	r := handler.NewRouter(h, httpServer, conf, logger)

	cronController := cron.NewController(ctx, uc, outboxStore, logger)
	if err := cronController.RegisterJobs(conf.Sync); err != nil {
		return nil, fmt.Errorf("register cron jobs: %w", err)
	}
	cronController.Start(ctx)
	srv.SetRunning(true)

	r.RegisterRouter()

	return &App{
		ctx:            ctx,
		conf:           conf,
		logger:         logger,
		postgres:       postgres,
		httpServer:     httpServer,
		cronController: cronController,
		service:        srv,
	}, nil
}

func (a *App) Run() error {
	return a.httpServer.Listen(fmt.Sprintf(":%s", a.conf.Server.Port))
}

func (a *App) Shutdown() error {
	if a.cronController != nil {
		a.cronController.Stop()
	}
	if a.service != nil {
		a.service.SetRunning(false)
	}
	return a.httpServer.Shutdown()
}
