package router

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "medication-adherence/docs"
	mem "medication-adherence/internal/adapters/storage/memory"
	pg "medication-adherence/internal/adapters/storage/postgres"
	"medication-adherence/internal/config"
	"medication-adherence/internal/domain/agenda"
	"medication-adherence/internal/domain/caregivers"
	"medication-adherence/internal/domain/doselogs"
	"medication-adherence/internal/domain/regimens"
	"medication-adherence/internal/domain/schedule"
	"medication-adherence/internal/middleware"
	"medication-adherence/internal/platform/logger"
	"medication-adherence/internal/platform/metrics"
	"medication-adherence/internal/ports/auth"
	"medication-adherence/internal/ports/rewards"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si viene, usa Postgres. Si no, in-memory.
	DB *sql.DB

	// Nil => config.Defaults().
	Config  *config.Config
	Logger  logger.Logger
	Metrics *metrics.Metrics
	Rewards rewards.Notifier

	// Reloj de los servicios; nil = time.Now.
	Now func() time.Time
}

// App expone los servicios armados para quien necesite usarlos fuera de HTTP (el sweeper).
type App struct {
	Handler http.Handler

	Regimens   *regimens.Service
	Doses      *doselogs.Service
	Agenda     *agenda.Service
	Caregivers *caregivers.Service
}

func NewRouter(opts Options) http.Handler {
	return New(opts).Handler
}

func New(opts Options) *App {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	lg := opts.Logger
	if lg == nil {
		lg = logger.Nop()
	}

	var (
		regimenRepo regimens.Repository
		doseRepo    doselogs.Repository
		linkRepo    caregivers.Repository
	)
	if opts.DB != nil {
		regimenRepo = pg.NewRegimensRepo(opts.DB)
		doseRepo = pg.NewDoseLogsRepo(opts.DB)
		linkRepo = pg.NewCaregiversRepo(opts.DB)
	} else {
		regimenRepo = mem.NewRegimenRepo()
		doseRepo = mem.NewDoseLogRepo()
		linkRepo = mem.NewCaregiverRepo()
	}

	// Services por módulo
	regimensSvc := regimens.NewService(regimenRepo)
	caregiversSvc := caregivers.NewService(linkRepo)
	rc := schedule.NewReconciler(cfg.ScheduleOptions())
	dosesSvc := doselogs.NewService(doseRepo, regimensSvc, doselogs.Options{
		Policy:     cfg.LatePolicy(),
		Reconciler: rc,
		Rewards:    opts.Rewards,
		Logger:     lg.With(map[string]any{"component": "doselogs"}),
		Metrics:    opts.Metrics,
		Now:        opts.Now,
	})
	agendaSvc := agenda.NewService(regimensSvc, doseRepo, rc, agenda.Options{
		Policy:  cfg.LatePolicy(),
		Logger:  lg.With(map[string]any{"component": "agenda"}),
		Metrics: opts.Metrics,
		Now:     opts.Now,
	})

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier))
	r.Use(middleware.RequestLog(lg))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// API con rate limit; health, metrics y swagger quedan fuera.
	r.Group(func(api chi.Router) {
		api.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

		regimens.RegisterRoutes(api, regimensSvc, caregiversSvc)
		doselogs.RegisterRoutes(api, dosesSvc, caregiversSvc)
		agenda.RegisterRoutes(api, agendaSvc, caregiversSvc)
		caregivers.RegisterRoutes(api, caregiversSvc)
	})

	return &App{
		Handler:    r,
		Regimens:   regimensSvc,
		Doses:      dosesSvc,
		Agenda:     agendaSvc,
		Caregivers: caregiversSvc,
	}
}
