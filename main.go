package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	orchestrator "github.com/tanpawarit/semilla-assistant/agent/agents/orchestrator"
	"github.com/tanpawarit/semilla-assistant/agent/catalog"
	"github.com/tanpawarit/semilla-assistant/agent/knowledge"
	llmx "github.com/tanpawarit/semilla-assistant/agent/llm"
	"github.com/tanpawarit/semilla-assistant/agent/notify"
	"github.com/tanpawarit/semilla-assistant/agent/orders"
	"github.com/tanpawarit/semilla-assistant/agent/policy"
	"github.com/tanpawarit/semilla-assistant/agent/prompt"
	"github.com/tanpawarit/semilla-assistant/agent/state"
	"github.com/tanpawarit/semilla-assistant/agent/tool"
	"github.com/tanpawarit/semilla-assistant/api"
	configx "github.com/tanpawarit/semilla-assistant/pkg/config"
	_ "github.com/tanpawarit/semilla-assistant/pkg/logger/autoload"
	mercadopagox "github.com/tanpawarit/semilla-assistant/pkg/mercadopago"
	"github.com/tanpawarit/semilla-assistant/pkg/messaging"
	metricsx "github.com/tanpawarit/semilla-assistant/pkg/metrics"
	qstashx "github.com/tanpawarit/semilla-assistant/pkg/qstash"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("assistant stopped")
	}
}

func run() error {
	ctx := context.Background()

	llmCfg := configx.MustNew[llmx.Config]("LLM")
	agentCfg := configx.MustNew[orchestrator.Config]("AGENT")
	serverCfg := configx.MustNew[api.Config]("SERVER")
	storeCfg := configx.MustNew[state.Config]("STORE")
	redisCfg := configx.MustNew[state.RedisConfig]("REDIS")
	upstashCfg := configx.MustNew[state.UpstashRedisConfig]("UPSTASH_REDIS")
	messagingCfg := configx.MustNew[messaging.Config]("MESSAGING")
	twilioCfg := configx.MustNew[messaging.TwilioConfig]("TWILIO")
	metaCfg := configx.MustNew[messaging.MetaConfig]("META")
	mpCfg := configx.MustNew[mercadopagox.Config]("MERCADOPAGO")
	knowledgeCfg := configx.MustNew[knowledge.Config]("KNOWLEDGE")
	catalogCfg := configx.MustNew[catalog.Config]("CATALOG")
	ordersCfg := configx.MustNew[orders.Config]("ORDERS")

	metrics := metricsx.New()

	backend, closeStore, err := state.Open(ctx, *storeCfg, *redisCfg, *upstashCfg)
	if err != nil {
		return fmt.Errorf("open state backend: %w", err)
	}
	defer closeStore()
	history := state.NewHistoryStore(backend)
	carts := state.NewCartStore(backend)

	chatModel, err := llmCfg.NewChatModel(ctx)
	if err != nil {
		return err
	}
	decider, err := policy.New(ctx, chatModel, tool.ToolInfos())
	if err != nil {
		return err
	}

	prompts, err := prompt.LoadPromptSetFrom(agentCfg.SystemPromptPath)
	if err != nil {
		return err
	}

	embedder, err := llmCfg.NewEmbedder()
	if err != nil {
		return err
	}
	retriever := knowledge.New(*knowledgeCfg, embedder)
	if !retriever.Load() {
		log.Warn().Str("index", knowledgeCfg.IndexPath).Msg("knowledge index not loaded; run cmd/indexer and send 'recargar'")
	}
	metrics.SetDegraded("knowledge", !retriever.Ready())

	products, err := catalog.Load(catalogCfg.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	linker, err := mercadopagox.New(*mpCfg)
	switch {
	case errors.Is(err, mercadopagox.ErrNotConfigured):
		log.Warn().Msg("mercadopago access token missing; checkout will fail")
		metrics.SetDegraded("payments", true)
	case err != nil:
		return err
	}

	sender, err := messaging.New(*messagingCfg, *twilioCfg, *metaCfg)
	switch {
	case errors.Is(err, messaging.ErrNotConfigured):
		log.Warn().Str("provider", messagingCfg.Provider).Msg("messaging credentials missing; replies will not be delivered")
		metrics.SetDegraded("messaging", true)
	case err != nil:
		return err
	}
	notifier := notify.New(sender, metrics)

	execDeps := tool.Deps{
		Carts:        carts,
		Prices:       products,
		Knowledge:    retriever,
		Payments:     linker,
		Notifier:     notifier,
		Metrics:      metrics,
		HumanContact: agentCfg.HumanContact,
	}
	orderStore, err := openOrders(ctx, *ordersCfg)
	if err != nil {
		return err
	}
	if orderStore != nil {
		defer orderStore.Close()
		execDeps.Orders = orderStore
	}

	assistant, err := orchestrator.New(orchestrator.Deps{
		History:      history,
		Carts:        carts,
		Policy:       decider,
		Executor:     tool.NewExecutor(execDeps),
		SystemPrompt: prompts.System,
		Metrics:      metrics,
	}, *agentCfg)
	if err != nil {
		return err
	}

	processor := api.NewProcessor(assistant, retriever, notifier)
	inProcess := api.NewInProcessDispatcher(processor, agentCfg.TurnTimeout+30*time.Second)
	handlerDeps := api.Deps{
		Processor:  processor,
		Dispatcher: inProcess,
		JobURL:     serverCfg.JobURL,
	}
	if twilioCfg.ValidateSignature {
		handlerDeps.TwilioAuthToken = twilioCfg.AuthToken
		handlerDeps.WebhookURL = twilioCfg.WebhookURL
	}

	switch strings.ToLower(strings.TrimSpace(serverCfg.DispatchMode)) {
	case api.DispatchQStash:
		qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
		qstashClient := qstashx.MustNew(*qstashCfg)
		queue, err := api.NewQueueDispatcher(qstashClient, serverCfg.JobURL, inProcess)
		if err != nil {
			return err
		}
		handlerDeps.Dispatcher = queue
		handlerDeps.Verifier = qstashClient
	case api.DispatchInProcess, "":
	default:
		return fmt.Errorf("unknown dispatch mode %q", serverCfg.DispatchMode)
	}

	handler, err := api.NewHandler(handlerDeps)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", serverCfg.Port),
		Handler:      api.NewRouter(handler, metrics.Handler()),
		ReadTimeout:  serverCfg.ReadTimeout,
		WriteTimeout: serverCfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		if err := inProcess.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("in-flight turns did not finish before shutdown")
		}
	}()

	log.Info().
		Str("addr", srv.Addr).
		Str("model", llmCfg.Model).
		Str("provider", sender.Provider()).
		Str("dispatch", serverCfg.DispatchMode).
		Msg("assistant listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	<-drained
	log.Info().Msg("server stopped")
	return nil
}

// openOrders returns nil when the order ledger is not configured.
func openOrders(ctx context.Context, cfg orders.Config) (*orders.Store, error) {
	db, err := orders.Open(cfg)
	if errors.Is(err, orders.ErrDisabled) {
		log.Info().Msg("order ledger disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	store := orders.NewStore(db)
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init order ledger: %w", err)
	}
	return store, nil
}
