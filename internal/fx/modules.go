package fx

import (
	"database/sql"

	"squad-reconciler/internal/api"
	"squad-reconciler/internal/config"
	"squad-reconciler/internal/database"
	"squad-reconciler/internal/db"
	"squad-reconciler/internal/logger"
	"squad-reconciler/internal/metrics"
	"squad-reconciler/internal/repository"
	"squad-reconciler/internal/server"
	"squad-reconciler/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideQueries(sqlDB *sql.DB) *db.Queries {
	return db.New(sqlDB)
}

// ProvideRegenerator uses the remote statistics service when one is configured and
// falls back to recomputing in SQLite.
func ProvideRegenerator(cfg *config.Config, local *repository.LocalRegenerator, logger zerolog.Logger) service.Regenerator {
	if cfg.RegeneratorURL != "" {
		logger.Info().Str("url", cfg.RegeneratorURL).Msg("using remote regenerator")
		return api.NewRegeneratorClient(cfg, logger)
	}
	logger.Info().Msg("using local regenerator")
	return local
}

// Core is everything needed to run checks and repairs, without the HTTP surface.
var Core = fx.Options(
	logger.Module,
	config.Module,
	metrics.Module,
	fx.Provide(database.New),
	fx.Provide(ProvideQueries),
	// repos
	fx.Provide(
		fx.Annotate(repository.NewPlayerRepository, fx.As(fx.Self()), fx.As(new(service.PlayerStore)), fx.As(new(server.Prober))),
		fx.Annotate(repository.NewSelectionRepository, fx.As(new(service.SelectionStore))),
		fx.Annotate(repository.NewEventStatRepository, fx.As(new(service.EventStatStore))),
		fx.Annotate(repository.NewAggregateRepository, fx.As(new(service.AggregateStore))),
		repository.NewLocalRegenerator,
	),
	// regenerator
	fx.Provide(ProvideRegenerator),
	// svc
	fx.Provide(service.SettingsFromConfig),
	fx.Provide(service.NewLoader),
	fx.Provide(service.NewValidator),
	fx.Provide(service.NewRepairOrchestrator),
	fx.Provide(service.NewEngine),
)

var Module = fx.Options(
	Core,
	// server
	fx.Provide(server.NewReconcileServer),
)
