package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	executionapp "github.com/wyfcoding/executioncore/internal/execution/application"
	lifecycleapp "github.com/wyfcoding/executioncore/internal/lifecycle/application"
	lifecycledomain "github.com/wyfcoding/executioncore/internal/lifecycle/domain"
	lifecyclemysql "github.com/wyfcoding/executioncore/internal/lifecycle/infrastructure/persistence/mysql"
	lifecyclehttp "github.com/wyfcoding/executioncore/internal/lifecycle/interfaces"
	notificationapp "github.com/wyfcoding/executioncore/internal/notification/application"
	notificationdomain "github.com/wyfcoding/executioncore/internal/notification/domain"
	notificationmysql "github.com/wyfcoding/executioncore/internal/notification/infrastructure/persistence/mysql"
	"github.com/wyfcoding/executioncore/internal/notification/infrastructure/sender"
	notificationhttp "github.com/wyfcoding/executioncore/internal/notification/interfaces"
	orderdomain "github.com/wyfcoding/executioncore/internal/order/domain"
	simdomain "github.com/wyfcoding/executioncore/internal/simulation/domain"
	trackingapp "github.com/wyfcoding/executioncore/internal/tracking/application"
	trackinghttp "github.com/wyfcoding/executioncore/internal/tracking/interfaces"
	triggerapp "github.com/wyfcoding/executioncore/internal/trigger/application"
	"github.com/wyfcoding/executioncore/internal/trigger/infrastructure/marketdata"
	triggerhttp "github.com/wyfcoding/executioncore/internal/trigger/interfaces"
	"github.com/wyfcoding/executioncore/pkg/mq"
	"github.com/wyfcoding/pkg/app"
	"github.com/wyfcoding/pkg/config"
	"github.com/wyfcoding/pkg/database"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/metrics"
	"github.com/wyfcoding/pkg/middleware"
)

// BootstrapName 服务唯一标识
const BootstrapName = "executioncore"

// Config 服务扩展配置
type Config struct {
	config.Config `mapstructure:",squash"`
	Execution     struct {
		KafkaBrokers      []string `mapstructure:"kafka_brokers" toml:"kafka_brokers"`
		NotificationTopic string   `mapstructure:"notification_topic" toml:"notification_topic"`
		WebhookURL        string   `mapstructure:"webhook_url" toml:"webhook_url"`
		WebhookTimeoutSec int      `mapstructure:"webhook_timeout_sec" toml:"webhook_timeout_sec"`
		SimulatorSeed     int64    `mapstructure:"simulator_seed" toml:"simulator_seed"`
	} `mapstructure:"execution" toml:"execution"`
}

// AppContext 应用上下文
type AppContext struct {
	Config     *Config
	Lifecycle  *lifecycleapp.LifecycleManager
	Engine     *triggerapp.TriggerEngine
	Tracker    *trackingapp.StateTracker
	Dispatcher *notificationapp.NotificationDispatcher
	Metrics    *metrics.Metrics

	lifecycleHandler    *lifecyclehttp.HTTPHandler
	triggerHandler      *triggerhttp.HTTPHandler
	trackingHandler     *trackinghttp.HTTPHandler
	notificationHandler *notificationhttp.HTTPHandler
}

func main() {
	if err := app.NewBuilder[*Config, *AppContext](BootstrapName).
		WithConfig(&Config{}).
		WithService(initService).
		WithGin(registerGin).
		WithGinMiddleware(
			middleware.CORS(),
			middleware.TimeoutMiddleware(30*time.Second),
		).
		Build().
		Run(); err != nil {
		slog.Error("service bootstrap failed", "error", err)
	}
}

func registerGin(e *gin.Engine, ctx *AppContext) {
	if ctx.Config.Server.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	api := e.Group("/api/v1")
	{
		ctx.lifecycleHandler.RegisterRoutes(api)
		ctx.triggerHandler.RegisterRoutes(api)
		ctx.trackingHandler.RegisterRoutes(api)
		ctx.notificationHandler.RegisterRoutes(api)
	}
}

func initService(cfg *Config, m *metrics.Metrics) (*AppContext, func(), error) {
	bootLog := slog.With("module", "bootstrap")
	logger := logging.Default()

	// 1. 数据库
	dbWrapper, err := database.NewDB(cfg.Data.Database, cfg.CircuitBreaker, logger, m)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init db: %w", err)
	}
	db := dbWrapper.RawDB()

	if err := db.AutoMigrate(
		&lifecyclemysql.ArchivedOrderModel{},
		&notificationmysql.NotificationModel{},
	); err != nil {
		return nil, nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	// 2. 消息队列
	producer := mq.NewProducer(mq.KafkaConfig{Brokers: cfg.Execution.KafkaBrokers}, logger.Logger)

	// 3. 领域组件
	converter := orderdomain.NewOrderConverter()
	archiveRepo := lifecyclemysql.NewArchiveRepository(db)
	lifecycle := lifecycleapp.NewLifecycleManager(archiveRepo, m, logger.Logger)

	simCfg := simdomain.DefaultConfig()
	simCfg.Seed = cfg.Execution.SimulatorSeed
	simulator := simdomain.NewMarketImpactSimulator(simCfg)

	provider := marketdata.NewMemoryProvider()
	executor := executionapp.NewSimulatedExecutor(lifecycle, simulator, provider, logger.Logger)
	engine := triggerapp.NewTriggerEngine(converter, lifecycle, provider, executor, logger.Logger)

	tracker := trackingapp.NewStateTracker(trackingapp.DefaultConfig(), logger.Logger)

	// 4. 通知分发
	notificationRepo := notificationmysql.NewNotificationRepository(db)
	dispatcher := notificationapp.NewNotificationDispatcher(notificationapp.DefaultConfig(), notificationRepo, logger.Logger)
	hub := sender.NewWebSocketHub(logger.Logger)
	dispatcher.RegisterSender(notificationdomain.ChannelLog, sender.NewLogSender(logger.Logger))
	dispatcher.RegisterSender(notificationdomain.ChannelWebSocket, hub)
	if cfg.Execution.WebhookURL != "" {
		dispatcher.RegisterSender(notificationdomain.ChannelWebhook, sender.NewWebhookSender(
			cfg.Execution.WebhookURL,
			time.Duration(cfg.Execution.WebhookTimeoutSec)*time.Second,
			logger.Logger,
		))
	}
	topic := cfg.Execution.NotificationTopic
	if topic == "" {
		topic = "order-notifications"
	}
	dispatcher.RegisterSender(notificationdomain.ChannelKafka, sender.NewKafkaSender(producer, topic))

	// 默认规则：全部终态事件走日志与 WebSocket
	dispatcher.AddRule(&notificationdomain.NotificationRule{
		RuleID: "default-lifecycle",
		Name:   "订单状态推送",
		Events: []lifecycledomain.Event{
			lifecycledomain.EventTriggered,
			lifecycledomain.EventFilled,
			lifecycledomain.EventPartiallyFilled,
			lifecycledomain.EventCancelled,
			lifecycledomain.EventRejected,
			lifecycledomain.EventExpired,
		},
		Channels: []notificationdomain.Channel{notificationdomain.ChannelLog, notificationdomain.ChannelWebSocket},
		Priority: notificationdomain.PriorityNormal,
		Enabled:  true,
	})

	// 5. 生命周期事件扇出到追踪与通知；终态订单同步摘除触发条件
	lifecycle.RegisterCallback(func(state *lifecycledomain.OrderLifecycleState, event lifecycledomain.Event) {
		ctx := context.Background()
		switch event {
		case lifecycledomain.EventCancelled, lifecycledomain.EventRejected, lifecycledomain.EventExpired:
			engine.RemoveTriggerOrder(state.Order.OrderID)
		}
		tracker.TrackStateChange(ctx, state, event)
		dispatcher.HandleOrderEvent(ctx, state, event)
	})

	// 6. 后台循环
	runCtx := context.Background()
	tracker.Start(runCtx)
	dispatcher.Start(runCtx)

	// 7. Handler
	lifecycleHandler := lifecyclehttp.NewHTTPHandler(lifecycle)
	triggerHandler := triggerhttp.NewHTTPHandler(engine, lifecycle, provider)
	trackingHandler := trackinghttp.NewHTTPHandler(tracker)
	notificationHandler := notificationhttp.NewHTTPHandler(dispatcher, hub)

	cleanup := func() {
		bootLog.Info("shutting down...")
		dispatcher.Stop()
		tracker.Stop()
		if err := producer.Close(); err != nil {
			bootLog.Warn("kafka producer close failed", "error", err)
		}
		if sqlDB, err := db.DB(); err == nil && sqlDB != nil {
			sqlDB.Close()
		}
	}

	return &AppContext{
		Config:              cfg,
		Lifecycle:           lifecycle,
		Engine:              engine,
		Tracker:             tracker,
		Dispatcher:          dispatcher,
		Metrics:             m,
		lifecycleHandler:    lifecycleHandler,
		triggerHandler:      triggerHandler,
		trackingHandler:     trackingHandler,
		notificationHandler: notificationHandler,
	}, cleanup, nil
}
