package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"github.com/maarten-devries/feynman-flashcards/internal/ai"
	"github.com/maarten-devries/feynman-flashcards/internal/db"
	"github.com/maarten-devries/feynman-flashcards/internal/handler"
	"github.com/maarten-devries/feynman-flashcards/internal/job"
	"github.com/maarten-devries/feynman-flashcards/internal/middleware"
	"github.com/maarten-devries/feynman-flashcards/internal/mochi"
	"github.com/maarten-devries/feynman-flashcards/internal/storage"
)

type Config struct {
	Host            string           `yaml:"host"`
	Port            int              `yaml:"port"`
	DBPath          string           `yaml:"db_path"`
	MochiAPIKey     string           `yaml:"mochi_api_key" validate:"required"`
	AnthropicAPIKey string           `yaml:"anthropic_api_key" validate:"required"`
	OpenAIAPIKey    string           `yaml:"openai_api_key"`
	JWTSecretKey    string           `yaml:"jwt_secret_key" validate:"required"`
	TTSProvider     string           `yaml:"tts_provider"` // "openai" (default) or "google"
	S3Storage       storage.S3Config `yaml:"s3_storage"`
}

func ReadConfig(filePath string) (*Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets environment variables take precedence over the
// config file for API keys, so keys can stay out of config.yml entirely.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MOCHI_API_KEY"); v != "" {
		cfg.MochiAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
}

func ValidateConfig(cfg *Config) error {
	validate := validator.New()
	return validate.Struct(cfg)
}

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}

	configFilePath := "config.yml"
	if v := os.Getenv("CONFIG_FILE_PATH"); v != "" {
		configFilePath = v
	}

	cfg, err := ReadConfig(configFilePath)
	if err != nil {
		log.Fatalf("error reading configuration: %v", err)
	}

	applyEnvOverrides(cfg)

	if err := ValidateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = "feynman.db"
	}

	dbStorage, err := db.ConnectDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	mochiClient, err := mochi.NewClient(cfg.MochiAPIKey)
	if err != nil {
		log.Fatalf("Failed to create Mochi client: %v", err)
	}

	anthropicClient, err := ai.NewAnthropicClient(cfg.AnthropicAPIKey)
	if err != nil {
		log.Fatalf("Failed to create Anthropic client: %v", err)
	}

	var transcriber ai.Transcriber
	var synthesizer ai.Synthesizer
	if cfg.OpenAIAPIKey != "" {
		openaiClient, err := ai.NewOpenAIClient(cfg.OpenAIAPIKey)
		if err != nil {
			log.Fatalf("Failed to create OpenAI client: %v", err)
		}
		transcriber = openaiClient
		synthesizer = openaiClient
	}

	if cfg.TTSProvider == "google" {
		googleSynth, err := ai.NewGoogleSynthesizer(context.Background())
		if err != nil {
			log.Fatalf("Failed to create Google TTS client: %v", err)
		}
		defer googleSynth.Close()
		synthesizer = googleSynth
	}

	var storageProvider storage.Provider
	if cfg.S3Storage.Bucket != "" {
		storageProvider, err = storage.NewS3Provider(cfg.S3Storage)
		if err != nil {
			log.Printf("Warning: Failed to initialize S3 storage: %v", err)
			storageProvider = nil
		}
	}

	h := handler.New(dbStorage, mochiClient, anthropicClient, transcriber, synthesizer, storageProvider, cfg.JWTSecretKey)

	e := echo.New()

	logr := slog.New(slog.NewTextHandler(os.Stdout, nil))

	middleware.Setup(e, logr)

	e.Validator = &CustomValidator{validator: validator.New()}

	h.RegisterRoutes(e)

	prefetcher := job.NewRephrasePrefetcher(dbStorage, anthropicClient)
	go prefetcher.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		port := cfg.Port
		if port == 0 {
			port = 8080
		}
		addr := fmt.Sprintf("%s:%d", cfg.Host, port)
		log.Printf("Starting server on %s", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	prefetcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}

	if err := dbStorage.Close(); err != nil {
		log.Printf("Warning: failed to close database: %v", err)
	}

	log.Println("Server gracefully stopped")
}
