package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"languagetutor/config"
	"languagetutor/db"
	"languagetutor/handlers"
	"languagetutor/services"
	"languagetutor/services/conversation"
	"languagetutor/services/exercise"
	"languagetutor/services/feedback"
	"languagetutor/services/llm"

	"github.com/gorilla/mux"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

func main() {
	cfg := config.Load()

	var userRepo db.UserRepository
	if cfg.DatabaseURL == "" {
		log.Printf("[INFO] DB_URL not set, using in-memory user store")
		userRepo = db.NewInMemoryUserRepository()
	} else {
		pgRepo, err := db.NewPostgresUserRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize user database: %v", err)
		}
		defer pgRepo.Close()
		userRepo = pgRepo
	}

	model, err := newModel(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	timeout := time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	conversationService := conversation.NewService(userRepo, model, timeout)
	feedbackService := feedback.NewService(userRepo, model, timeout)
	exerciseService := exercise.NewService(userRepo, model, timeout)

	tutorService := services.NewTutorService(userRepo, conversationService, feedbackService, exerciseService, cfg.MaxGenerationRetries)
	tutorHandler := handlers.NewTutorHandler(tutorService)
	exerciseHandler := handlers.NewExerciseHandler(tutorService)

	router := mux.NewRouter()

	router.Use(corsMiddleware)
	router.Use(jsonMiddleware)

	router.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("OPTIONS")

	tutorHandler.RegisterRoutes(router)
	exerciseHandler.RegisterRoutes(router)

	router.HandleFunc("/health", healthCheckHandler).Methods("GET")

	addr := ":" + cfg.Port
	fmt.Printf("Server starting on port %s\n", cfg.Port)

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}

func newModel(cfg *config.Config) (llms.Model, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		return llm.NewAnthropicModel(cfg.AnthropicAPIKey)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel("gpt-4o-mini"),
		)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, PATCH")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Expose-Headers", "*")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "healthy"}`))
}
