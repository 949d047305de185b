//go:build wireinject
// +build wireinject

package di

import (
	"ModelGate/pkg/config"
	"ModelGate/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideRedisClient,

		// Repositories
		ProvideTradeLog,
		ProvideSnapshotStore,
		ProvideEventLog,
		ProvideDecisionPublisher,
		ProvideSettlementStream,
		ProvideRegimeDetector,

		// Use cases
		ProvideShadowRunner,
		ProvidePromotionService,
		ProvideChampionService,
		ProvideIngestPipeline,
		ProvideRetryQueue,
		ProvideOutcomeCollector,
		ProvideKafkaConsumers,
		ProvideScheduler,

		// HTTP control plane
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
