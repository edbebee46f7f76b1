package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Detector backends.
const (
	BackendDNN    = "dnn"
	BackendRemote = "remote"
)

type Config struct {
	Port            int
	LogDirectory    string
	StaticDirectory string // Viewer pages and assets
	MaxUploadMB     int

	ObjectBackend    string
	ObjectModelPath  string
	ObjectConfigPath string
	ObjectThreshold  float64
	MaxResults       int // Box budget for the object detector

	FaceBackend    string
	FaceModelPath  string
	FaceConfigPath string
	FaceThreshold  float64
	FaceInputSize  int // Square input the face network runs at
	FlipHorizontal bool

	InferenceURL    string // Base URL of the remote inference service
	DetectorTimeout time.Duration

	MaxDisplayWidth  int // 0 = no limit
	MaxDisplayHeight int

	JournalPath          string // Empty disables the frame journal
	JournalFlushInterval time.Duration
	HistoryLimit         int
}

// Load reads optional env files (default ".env") and then the environment.
// Variables already set in the environment are never overridden by a file.
func Load(envFiles ...string) *Config {
	// missing files are fine
	_ = godotenv.Load(envFiles...)

	return &Config{
		Port:            getEnvAsInt("PORT", 8080),
		LogDirectory:    getEnv("LOG_DIR", filepath.Join(".", "logs")),
		StaticDirectory: getEnv("STATIC_DIR", filepath.Join(".", "static")),
		MaxUploadMB:     getEnvAsInt("MAX_UPLOAD_MB", 20),

		ObjectBackend:    strings.ToLower(getEnv("OBJECT_BACKEND", BackendDNN)),
		ObjectModelPath:  getEnv("OBJECT_MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ObjectConfigPath: getEnv("OBJECT_CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		ObjectThreshold:  getEnvAsFloat("OBJECT_THRESHOLD", 0.5),
		MaxResults:       getEnvAsInt("MAX_RESULTS", 6),

		FaceBackend:    strings.ToLower(getEnv("FACE_BACKEND", BackendDNN)),
		FaceModelPath:  getEnv("FACE_MODEL_PATH", filepath.Join(".", "models", "res10_300x300_ssd_iter_140000.caffemodel")),
		FaceConfigPath: getEnv("FACE_CONFIG_PATH", filepath.Join(".", "models", "deploy.prototxt")),
		FaceThreshold:  getEnvAsFloat("FACE_THRESHOLD", 0.6),
		FaceInputSize:  getEnvAsInt("FACE_INPUT_SIZE", 300),
		FlipHorizontal: getEnvAsBool("FLIP_HORIZONTAL", false),

		InferenceURL:    strings.TrimRight(getEnv("INFERENCE_URL", "http://localhost:5000"), "/"),
		DetectorTimeout: getEnvAsDuration("DETECTOR_TIMEOUT", 30*time.Second),

		MaxDisplayWidth:  getEnvAsInt("MAX_DISPLAY_WIDTH", 0),
		MaxDisplayHeight: getEnvAsInt("MAX_DISPLAY_HEIGHT", 0),

		JournalPath:          getEnv("JOURNAL_PATH", ""),
		JournalFlushInterval: getEnvAsDuration("JOURNAL_FLUSH_INTERVAL", 10*time.Second),
		HistoryLimit:         getEnvAsInt("HISTORY_LIMIT", 50),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("750ms") or whole seconds ("30").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
