package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"llm-quiz-service/internal/app"
	"llm-quiz-service/internal/config"
	"llm-quiz-service/internal/domain"
	catfile "llm-quiz-service/internal/infra/file"
	"llm-quiz-service/internal/infra/memory"
	pgloader "llm-quiz-service/internal/infra/postgres"
	redissession "llm-quiz-service/internal/infra/redis"
	"llm-quiz-service/internal/llm"
	transport "llm-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz-and-chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	// API keys live in the environment; .env is a convenience, not required.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	catalogPath := cfg.Quiz.CatalogPath
	if catalogPath == "" {
		catalogPath = "quiz_data.json"
	}
	var loader memory.CatalogLoader = catfile.NewCatalogLoader(catalogPath)
	if pool != nil {
		loader = pgloader.NewCatalogLoader(pool)
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	catalogRepo := memory.NewCatalogRepository(loader, quizTTL)

	scorePath := cfg.Scores.Path
	if scorePath == "" {
		scorePath = "quiz_scores.json"
	}
	scoreStore := catfile.NewScoreStore(scorePath)

	var sessions app.SessionRepository
	if redisClient != nil {
		sessions = redissession.NewSessionStore(redisClient, redisTTL)
	} else {
		sessions = memory.NewSessionStore()
	}

	defaultProvider := domain.ProviderOpenAI
	if cfg.LLM.Provider != "" {
		defaultProvider, err = domain.ParseProvider(cfg.LLM.Provider)
		if err != nil {
			return err
		}
	}
	registry := llm.NewRegistry(providerConfigs(cfg))
	chatTimeout := config.TTLDuration(cfg.LLM.RequestTimeout, 60*time.Second)
	chatService := app.NewChatService(registry, defaultProvider, samplingProfiles(cfg), chatTimeout, catalogRepo)

	quizService := app.NewQuizService(sessions, catalogRepo, scoreStore)
	wsHandler := transport.NewWSHandler(quizService, chatService)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: chat responses stream over long-lived websockets.
	}

	go func() {
		log.Printf("starting llm-quiz-service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// providerConfigs maps the closed provider set to client settings; keys come
// from the environment only.
func providerConfigs(cfg config.Config) map[domain.ProviderID]llm.Config {
	configs := map[domain.ProviderID]llm.Config{
		domain.ProviderOpenAI: {APIKey: os.Getenv("OPENAI_API_KEY")},
		domain.ProviderGemini: {APIKey: os.Getenv("GOOGLE_API_KEY")},
		domain.ProviderGrok:   {APIKey: os.Getenv("GROK_API_KEY")},
	}
	for raw, profile := range cfg.LLM.Profiles {
		id, err := domain.ParseProvider(raw)
		if err != nil {
			log.Printf("ignoring profile for %s: %v", raw, err)
			continue
		}
		c := configs[id]
		c.Model = profile.Model
		configs[id] = c
	}
	return configs
}

// samplingProfiles resolves the sampling parameters per provider:
// baseline defaults, then the config defaults block, then either the
// built-in per-provider profile or the configured one.
func samplingProfiles(cfg config.Config) map[domain.ProviderID]domain.SamplingParams {
	profiles := make(map[domain.ProviderID]domain.SamplingParams, 3)
	for _, id := range []domain.ProviderID{domain.ProviderOpenAI, domain.ProviderGemini, domain.ProviderGrok} {
		params := domain.SamplingParams{Temperature: 0.7, TopP: 1.0}
		applyProfile(&params, cfg.LLM.Defaults)
		if profile, ok := cfg.LLM.Profiles[string(id)]; ok {
			applyProfile(&params, profile)
		} else {
			applyBuiltin(&params, id)
		}
		profiles[id] = params
	}
	return profiles
}

func applyProfile(params *domain.SamplingParams, profile config.Profile) {
	if profile.Temperature != nil {
		params.Temperature = *profile.Temperature
	}
	if profile.TopP != nil {
		params.TopP = *profile.TopP
	}
	if profile.TopK != nil {
		params.TopK = profile.TopK
	}
}

// applyBuiltin sets the stock per-provider tuning: OpenAI more
// deterministic, Gemini focused with a capped top_k, Grok more creative.
func applyBuiltin(params *domain.SamplingParams, id domain.ProviderID) {
	switch id {
	case domain.ProviderOpenAI:
		params.Temperature = 0.5
		params.TopP = 0.9
	case domain.ProviderGemini:
		params.Temperature = 0.3
		params.TopP = 0.95
		topK := 30
		params.TopK = &topK
	case domain.ProviderGrok:
		params.Temperature = 0.8
	}
}
