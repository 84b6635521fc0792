package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	authhandler "crmhub/internal/auth/handler"
	authservice "crmhub/internal/auth/service"
	automationhandler "crmhub/internal/automation/handler"
	automationmetrics "crmhub/internal/automation/metrics"
	automationservice "crmhub/internal/automation/service"
	contacthandler "crmhub/internal/contact/handler"
	contactmetrics "crmhub/internal/contact/metrics"
	contactservice "crmhub/internal/contact/service"
	dealhandler "crmhub/internal/deal/handler"
	dealmetrics "crmhub/internal/deal/metrics"
	dealservice "crmhub/internal/deal/service"
	"crmhub/internal/events"
	"crmhub/internal/events/relay"
	integrationhandler "crmhub/internal/integration/handler"
	integrationservice "crmhub/internal/integration/service"
	jwttoken "crmhub/internal/jwt_token"
	leadhandler "crmhub/internal/leads/handler"
	"crmhub/internal/leads/idempotency"
	leadmetrics "crmhub/internal/leads/metrics"
	"crmhub/internal/leads/reconcile"
	"crmhub/internal/notify/channel"
	notifyhandler "crmhub/internal/notify/handler"
	notifymetrics "crmhub/internal/notify/metrics"
	notifyservice "crmhub/internal/notify/service"
	pipelinehandler "crmhub/internal/pipeline/handler"
	pipelineservice "crmhub/internal/pipeline/service"
	"crmhub/internal/platform/config"
	"crmhub/internal/platform/kafka"
	httpmetrics "crmhub/internal/platform/metrics"
	"crmhub/internal/platform/redis"
	rlmetrics "crmhub/internal/ratelimit/metrics"
	ratelimit "crmhub/internal/ratelimit/middleware"
	rlmodels "crmhub/internal/ratelimit/models"
	"crmhub/internal/ratelimit/store/bucket"
	taskhandler "crmhub/internal/task/handler"
	taskservice "crmhub/internal/task/service"
	"crmhub/internal/tenant"
	tenantmetrics "crmhub/internal/tenant/metrics"
	tenantservice "crmhub/internal/tenant/service"
	httptransport "crmhub/internal/transport/http"
	"crmhub/pkg/platform/circuit"
	"crmhub/pkg/platform/middleware/metadata"
)

// app is the fully wired service: the HTTP handler plus the background
// workers and connections that must be released on shutdown.
type app struct {
	handler    http.Handler
	dispatcher *events.Dispatcher
	relay      *relay.Relay
	closers    []closer
	log        *slog.Logger
}

type closer struct {
	name string
	fn   func() error
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{log: log}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	proxies, err := metadata.ParseProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, err := openStores(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closer{"postgres", st.Close})

	checks := map[string]httptransport.HealthCheck{}
	if st.db != nil {
		checks["postgres"] = st.health
	}

	var keys leadhandler.KeyStore = idempotency.NewInMemory()
	var buckets ratelimit.BucketStore
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, closer{"redis", rc.Close})
		keys = idempotency.NewRedisStore(rc.Client)
		buckets = bucket.NewRedisBucketStore(rc.Client)
		checks["redis"] = rc.Health
		log.Info("idempotency keys and rate limits stored in redis")
	} else {
		log.Warn("REDIS_URL not set, idempotency keys and rate limits kept in process memory")
		mem := bucket.NewInMemoryBucketStore()
		buckets = mem
		a.closers = append(a.closers, closer{"ratelimit-sweeper", startSweeper(mem, cfg.RateLimit.Window)})
	}
	limiter := ratelimit.New(buckets, map[rlmodels.EndpointClass]rlmodels.Limit{
		rlmodels.ClassAuth:    {Requests: cfg.RateLimit.AuthRequests, Window: cfg.RateLimit.Window},
		rlmodels.ClassInbound: {Requests: cfg.RateLimit.InboundRequests, Window: cfg.RateLimit.Window},
	},
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(rlmetrics.New(reg)),
	)

	eventMetrics := events.NewMetrics(reg)
	a.dispatcher = events.NewDispatcher(
		events.WithDispatcherLogger(log),
		events.WithDispatcherMetrics(eventMetrics),
	)
	publisher := events.NewPublisher(st.outbox, a.dispatcher)

	// Services
	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer)

	pipelines := pipelineservice.New(st.pipelines,
		pipelineservice.WithLogger(log),
		pipelineservice.WithTxRunner(st.tx),
		pipelineservice.WithOpenDealCounter(st.deals),
	)
	tenants := tenant.NewService(st.companies, st.users,
		tenantservice.WithLogger(log),
		tenantservice.WithMetrics(tenantmetrics.New(reg)),
		tenantservice.WithTxRunner(st.tx),
		tenantservice.WithBootstrapper(pipelines),
	)
	auth := authservice.New(st.users, tokens, cfg.Auth.TokenTTL, authservice.WithLogger(log))

	contactMetrics := contactmetrics.New(reg)
	dealMetrics := dealmetrics.New(reg)
	contacts := contactservice.New(st.contacts, st.users,
		contactservice.WithLogger(log),
		contactservice.WithMetrics(contactMetrics),
		contactservice.WithTxRunner(st.tx),
		contactservice.WithEvents(publisher),
	)
	deals := dealservice.New(st.deals, pipelines, st.contacts, st.users,
		dealservice.WithLogger(log),
		dealservice.WithMetrics(dealMetrics),
		dealservice.WithTxRunner(st.tx),
		dealservice.WithEvents(publisher),
	)
	tasks := taskservice.New(st.tasks, st.users, taskservice.WithLogger(log))
	integrations := integrationservice.New(st.integrations, st.users, pipelines, integrationservice.WithLogger(log))

	notifyOpts := []notifyservice.Option{
		notifyservice.WithLogger(log),
		notifyservice.WithMetrics(notifymetrics.New(reg)),
	}
	notifyOpts = append(notifyOpts, notificationChannels(cfg, log)...)
	notifications := notifyservice.New(st.notes, st.users, notifyOpts...)

	automation := automationservice.New(st.rules, st.users,
		automationservice.Actions{Notifier: notifications, Tasks: tasks, Tags: contacts},
		automationservice.WithLogger(log),
		automationservice.WithMetrics(automationmetrics.New(reg)),
	)

	a.dispatcher.Subscribe(notifications.HandleEvent, notifyservice.EventTypes...)
	a.dispatcher.Subscribe(automation.HandleEvent, automationservice.EventTypes...)

	leadMetrics := leadmetrics.New(reg)
	reconciler := reconcile.New(st.contacts, st.deals, st.users, pipelines,
		reconcile.WithLogger(log),
		reconcile.WithTxRunner(st.tx),
		reconcile.WithEvents(publisher),
		reconcile.WithMetrics(leadMetrics),
		reconcile.WithEntityMetrics(contactMetrics, dealMetrics),
	)
	leads := leadhandler.New(integrations, reconciler, keys,
		leadhandler.WithLogger(log),
		leadhandler.WithMetrics(leadMetrics),
		leadhandler.WithKeyTTL(cfg.Leads.IdempotencyTTL),
		leadhandler.WithSignatureTolerance(cfg.Leads.SignatureTolerance),
	)

	// Outbox relay
	var producer relay.Producer = relay.NewLogProducer(log)
	kc, err := kafka.New(cfg.Kafka)
	if err != nil {
		return nil, err
	}
	if kc != nil {
		a.closers = append(a.closers, closer{"kafka", func() error { kc.Close(); return nil }})
		if err := kafka.EnsureTopic(ctx, kc, cfg.Kafka, log); err != nil {
			return nil, err
		}
		producer = relay.NewKafkaProducer(kc)
	} else {
		log.Warn("KAFKA_BROKERS not set, outbox events are only logged")
	}
	a.relay = relay.New(st.outbox, producer,
		relay.WithLogger(log),
		relay.WithMetrics(eventMetrics),
		relay.WithBatchSize(cfg.Relay.BatchSize),
		relay.WithBreaker(circuit.New("outbox-relay",
			circuit.WithFailureThreshold(3),
			circuit.WithSuccessThreshold(1),
			circuit.WithCooldown(30*time.Second),
		)),
	)
	if err := a.relay.Start(ctx, cfg.Relay.Schedule); err != nil {
		return nil, err
	}

	tenantHandler := tenant.NewHandler(tenants, log)
	a.handler = httptransport.NewRouter(httptransport.Config{
		Logger:         log,
		Latency:        httpmetrics.New(reg),
		Gatherer:       reg,
		Tokens:         jwttoken.NewMiddlewareAdapter(tokens),
		AdminToken:     cfg.Server.AdminToken,
		RequestTimeout: cfg.Server.RequestTimeout,
		Checks:         checks,
		Proxies:        proxies,
		Public:         []httptransport.Registrar{authhandler.New(auth, log)},
		AuthLimit:      limiter.RateLimit(rlmodels.ClassAuth),
		Inbound:        []httptransport.Registrar{leads},
		InboundLimit:   limiter.RateLimit(rlmodels.ClassInbound),
		API: []httptransport.Registrar{
			tenantHandler,
			pipelinehandler.New(pipelines, log),
			contacthandler.New(contacts, log),
			dealhandler.New(deals, log),
			taskhandler.New(tasks, log),
			integrationhandler.New(integrations, log),
			automationhandler.New(automation, log),
			notifyhandler.New(notifications, log),
		},
		Admin: []func(r chi.Router){tenantHandler.RegisterAdmin},
	})
	if cfg.Server.AdminToken == "" {
		log.Warn("ADMIN_API_TOKEN not set, admin routes disabled")
	}
	return a, nil
}

// shutdown stops the relay, drains the dispatcher, then closes connections.
func (a *app) shutdown(ctx context.Context) {
	if a.relay != nil {
		if err := a.relay.Stop(ctx); err != nil {
			a.log.Error("outbox relay stop", "error", err)
		}
	}
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			a.log.Error("event dispatcher close", "error", err)
		}
	}
	a.closeResources()
}

func (a *app) closeResources() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Error("close failed", "resource", c.name, "error", err)
		}
	}
	a.closers = nil
}

// startSweeper periodically drops idle in-memory rate limit buckets.
func startSweeper(store *bucket.InMemoryBucketStore, every time.Duration) func() error {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				store.Sweep()
			case <-done:
				return
			}
		}
	}()
	return func() error {
		ticker.Stop()
		close(done)
		return nil
	}
}

// notificationChannels enables the out-of-app channels that are configured.
func notificationChannels(cfg config.Config, log *slog.Logger) []notifyservice.Option {
	var opts []notifyservice.Option
	if cfg.SMTP.Host != "" {
		email, err := channel.NewEmail(channel.EmailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			log.Error("email notifications disabled", "error", err)
		} else {
			opts = append(opts, notifyservice.WithChannel(email,
				circuit.WithFailureThreshold(5),
				circuit.WithCooldown(time.Minute),
			))
		}
	}
	if cfg.Telegram.NotifyBotToken != "" {
		bot, err := channel.NewTelegram(cfg.Telegram.NotifyBotToken)
		if err != nil {
			log.Error("telegram notifications disabled", "error", err)
		} else {
			opts = append(opts, notifyservice.WithChannel(bot,
				circuit.WithFailureThreshold(5),
				circuit.WithCooldown(time.Minute),
			))
		}
	}
	return opts
}
