package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"companion/internal/api"
	"companion/internal/config"
	"companion/internal/logger"
	"companion/internal/middleware"
	"companion/internal/redis"
	"companion/internal/service/audiostore"
	"companion/internal/service/chat"
	"companion/internal/service/conversation"
	"companion/internal/service/speech"
	"companion/internal/service/textgen"
	"companion/internal/storage"
	"companion/internal/worker"

	"github.com/cloudwego/eino/components/tool"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"google.golang.org/genai"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("load .env", "error", err)
	}

	cfg, err := config.Load(os.Getenv("COMPANION_CONFIG"))
	if err != nil {
		fatal("load config", err)
	}
	if err := logger.Setup(cfg.Log); err != nil {
		fatal("setup logger", err)
	}
	if cfg.BasicConfig.GinMode != "" {
		gin.SetMode(cfg.BasicConfig.GinMode)
	}
	ctx := context.Background()

	dbType := os.Getenv("COMPANION_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	slog.Info("opening database", "driver", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		fatal("open database", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		fatal("migrate database", err)
	}

	store := conversation.NewStore(db)
	var history interface {
		chat.HistoryStore
		api.TurnPager
	} = store
	if redis.Enabled(cfg) {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			fatal("create redis client", err)
		}
		defer rdb.Close()
		history = conversation.NewCachedStore(store, rdb, time.Duration(cfg.Redis.TTL)*time.Second)
		slog.Info("history cache enabled", "host", cfg.Redis.Host)
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		fatal("create genai client", err)
	}

	generator, err := newGenerator(ctx, cfg, genaiClient)
	if err != nil {
		fatal("init text generator", err)
	}
	synthesizer := speech.NewSynthesizer(
		speech.NewGeminiSource(genaiClient, cfg.Speech.Model, cfg.SpeechTemperature()),
		cfg.Speech.DefaultVoice,
	)
	artifacts, err := audiostore.NewLocalStore(cfg.AudioDir())
	if err != nil {
		fatal("init audio store", err)
	}
	orchestrator := chat.NewOrchestrator(history, generator, synthesizer, artifacts, chat.Options{
		GenerationFallback: cfg.Chat.GenerationFallback,
		SynthesisFallback:  cfg.Chat.SynthesisFallback,
	})

	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Second,
	})
	defer dispatcher.Close()

	handlers := api.NewHandler(orchestrator, history, dispatcher, api.Options{
		StaticDir:     cfg.BasicConfig.StaticDir,
		PublicBaseURL: cfg.BasicConfig.PublicBaseURL,
		ChatTimeout:   time.Duration(cfg.BasicConfig.ChatTimeout) * time.Second,
	})

	router := gin.New()
	router.Use(middleware.Logger(), middleware.Recovery(), middleware.CORS(cfg.BasicConfig.AllowedOrigins))
	handlers.RegisterRoutes(router)

	slog.Info("server starting", "addr", cfg.BasicConfig.ServerAddress, "backend", cfg.Chat.Backend)
	if err := router.Run(cfg.BasicConfig.ServerAddress); err != nil {
		fatal("server stopped", err)
	}
}

func newGenerator(ctx context.Context, cfg *config.Config, client *genai.Client) (textgen.Generator, error) {
	if cfg.Chat.Backend == "eino" {
		prov := cfg.Providers[cfg.Chat.Provider]
		model := cfg.Chat.Model
		if model == "" {
			model = prov.Model
		}
		var tools []tool.BaseTool
		if cfg.Chat.WebTools {
			tools = textgen.InitTools(ctx)
		}
		return textgen.NewEinoGenerator(ctx, textgen.EinoConfig{
			Provider:    cfg.Chat.Provider,
			Model:       model,
			BaseURL:     prov.BaseURL,
			APIKey:      prov.APIKey,
			GenaiClient: client,
			Tools:       tools,
		})
	}
	model := cfg.Chat.Model
	if model == "" {
		model = config.DefaultChatModel
	}
	return textgen.NewGeminiGenerator(client, model)
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
