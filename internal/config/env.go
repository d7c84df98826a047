package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	Port        string

	// Document ingestion
	DocsDir              string
	ChunkSize            int
	ChunkOverlap         int
	MinChunkSize         int
	IngestWorkers        int
	IngestTimeoutSeconds int

	// Embedding
	EmbeddingProvider string // "gemini", "openai" or "ollama"
	GeminiAPIKey      string
	OpenAIAPIKey      string
	OllamaURL         string
	EmbedModel        string
	EmbedDim          int

	// Generation
	GenModel            string
	TopK                int
	SimilarityThreshold float64

	// Object storage for raw uploads
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	JWTSecret string
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		Port:        getEnv("PORT", "8080"),

		DocsDir:              getEnv("DOCS_DIR", "./data/documents"),
		ChunkSize:            getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:         getEnvInt("CHUNK_OVERLAP", 200),
		MinChunkSize:         getEnvInt("MIN_CHUNK_SIZE", 100),
		IngestWorkers:        getEnvInt("INGEST_WORKERS", 4),
		IngestTimeoutSeconds: getEnvInt("INGEST_TIMEOUT_SECONDS", 600),

		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "gemini"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),
		EmbedModel:        getEnv("EMBED_MODEL", ""),
		EmbedDim:          getEnvInt("EMBED_DIM", 768),

		GenModel:            getEnv("GEN_MODEL", "gemini-1.5-flash"),
		TopK:                getEnvInt("TOP_K", 5),
		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.7),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "battintel-docs"),

		JWTSecret: getEnv("JWT_SECRET", ""),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}
