package main

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cherryvm/vmhub/internal/hub"
	"cherryvm/vmhub/internal/restapi"
	"cherryvm/vmhub/pkg/auth"
	"cherryvm/vmhub/pkg/config"
	"cherryvm/vmhub/pkg/kafka"
	"cherryvm/vmhub/pkg/logging"
	"cherryvm/vmhub/pkg/monitoring"
	"cherryvm/vmhub/pkg/server"
	"cherryvm/vmhub/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("vmhub")
	config.LoadEnv(logger)

	jwtSecret := []byte(config.RequireEnv("JWT_SECRET"))
	serviceToken := config.RequireEnv("HUB_SERVICE_TOKEN")

	metricsCollector := monitoring.NewMetricsCollector("vmhub", version.Version, version.GitCommit)
	hubMetrics := hub.NewMetrics(metricsCollector)

	hypervisor := hub.NewHypervisorClient(logger.WithField("component", "hypervisor_client"))

	intervals := hub.Intervals{
		State:       time.Duration(config.GetEnvInt("STATE_BROADCAST_INTERVAL_SECONDS", 1)) * time.Second,
		Disks:       time.Duration(config.GetEnvInt("DISKS_BROADCAST_INTERVAL_SECONDS", 120)) * time.Second,
		Connections: time.Duration(config.GetEnvInt("CONNECTIONS_BROADCAST_INTERVAL_SECONDS", 10)) * time.Second,
	}

	orchestrator := hub.NewOrchestrator(hypervisor, hypervisor, intervals, logger, hubMetrics)

	authenticator := hub.NewJWTAuthenticator(jwtSecret)
	hubServer := hub.NewServer(orchestrator, authenticator, logger)

	brokers := strings.Split(config.GetEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	eventHandler := hub.NewLifecycleEventHandler(orchestrator, hypervisor, logger.WithField("component", "lifecycle_events"))
	consumer, err := kafka.NewConsumer(brokers, config.GetEnv("KAFKA_CONSUMER_GROUP", "vmhub"), config.GetEnv("KAFKA_CLUSTER_ID", "default"), "vmhub", logger, eventHandler)
	if err != nil {
		logger.WithError(err).Fatal("failed to create kafka consumer")
	}
	if err := consumer.Subscribe([]string{config.GetEnv("KAFKA_LIFECYCLE_TOPIC", "machine.lifecycle")}); err != nil {
		logger.WithError(err).Fatal("failed to subscribe to lifecycle topic")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orchestrator.StartAllBroadcasts(ctx)
	defer orchestrator.StopAllBroadcasts()

	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("kafka consumer stopped unexpectedly")
		}
	}()
	defer consumer.Close()

	healthChecker := monitoring.NewHealthChecker("vmhub", version.Version)
	healthChecker.AddCheck("kafka_consumer", monitoring.KafkaConsumerHealthCheck(consumer.GetClient()))

	router := server.SetupServiceRouter(logger, "vmhub", healthChecker, metricsCollector)

	router.GET("/ws/machines/subscribed", hubServer.ServeMachine)
	router.GET("/ws/machines/account", hubServer.ServeAccount)
	router.GET("/ws/machines/global", hubServer.ServeGlobal)

	admin := router.Group("/admin", auth.ServiceAuthMiddleware(serviceToken))
	restapi.RegisterRoutes(admin, restapi.NewAdminHandlers(hubServer))

	router.GET("/version", func(c *gin.Context) {
		c.JSON(200, version.GetInfo())
	})

	cfg := server.DefaultConfig("vmhub", "8085")
	if err := server.Start(cfg, router, logger); err != nil {
		logger.WithError(err).Fatal("server exited with error")
	}
}
