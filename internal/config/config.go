package config

import (
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP viewer (ingest process)
	Port     int
	Password string

	// Video source
	CameraHost        string
	CameraPort        int
	CameraUser        string
	CameraPassword    string
	CameraPath        string
	StreamURL         string        // Overrides the URL built from the camera fields
	CaptureTimeout    time.Duration // Open/read timeout applied to the capture backend
	ReopenAfterFails  int           // Consecutive read failures before the stream is reopened
	StopGrace         time.Duration // How long Stop waits for the capture worker
	FrameRetryBackoff time.Duration

	// Detection
	ModelPath           string
	InferEveryN         int // Run inference on every Nth frame
	InferWidth          int // Max width of the downscaled inference copy
	ConfidenceThreshold float64
	DrawBoxes           bool

	// Shared state and audit log
	StatePath       string
	EventLogPath    string
	CountStaleAfter time.Duration // 0 disables staleness checks

	// Automation
	PollInterval   time.Duration
	WindowSize     int
	CommandTimeout time.Duration

	// Relay
	RelayURL      string
	RelayUser     string
	RelayPassword string

	// SMS notifications
	SMSPort           string
	SMSBaud           int
	SMSNumber         string
	SMSCountryCode    string
	SMSTurnOnMessage  string
	SMSTurnOffMessage string

	LogDirectory string
	LogLevel     string
}

func Load() *Config {
	// A missing .env is fine; the environment still applies.
	_ = godotenv.Load()

	return &Config{
		Port:     getEnvAsInt("PORT", 8080),
		Password: getEnv("PASSWORD", "admin123"),

		CameraHost:        getEnv("CAMERA_HOST", "192.168.0.184"),
		CameraPort:        getEnvAsInt("CAMERA_PORT", 554),
		CameraUser:        getEnv("CAMERA_USER", "admin"),
		CameraPassword:    getEnv("CAMERA_PASSWORD", ""),
		CameraPath:        getEnv("CAMERA_PATH", "/cam/realmonitor?channel=1&subtype=1"),
		StreamURL:         getEnv("STREAM_URL", ""),
		CaptureTimeout:    getEnvAsDuration("CAPTURE_TIMEOUT", 3*time.Second),
		ReopenAfterFails:  getEnvAsInt("REOPEN_AFTER_FAILURES", 10),
		StopGrace:         getEnvAsDuration("STOP_GRACE", 5*time.Second),
		FrameRetryBackoff: getEnvAsDuration("FRAME_RETRY_BACKOFF", 100*time.Millisecond),

		ModelPath:           getEnv("MODEL_PATH", filepath.Join(".", "models", "yolov8n.onnx")),
		InferEveryN:         getEnvAsInt("INFER_EVERY_N", 3),
		InferWidth:          getEnvAsInt("INFER_WIDTH", 480),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.35),
		DrawBoxes:           getEnvAsBool("DRAW_BOXES", true),

		StatePath:       getEnv("STATE_PATH", filepath.Join(".", "data", "state.db")),
		EventLogPath:    getEnv("EVENT_LOG_PATH", filepath.Join(".", "data", "events.db")),
		CountStaleAfter: getEnvAsDuration("COUNT_STALE_AFTER", 0),

		PollInterval:   getEnvAsDuration("POLL_INTERVAL", time.Second),
		WindowSize:     getEnvAsInt("WINDOW_SIZE", 30),
		CommandTimeout: getEnvAsDuration("COMMAND_TIMEOUT", 5*time.Second),

		RelayURL:      getEnv("RELAY_URL", "http://192.168.0.128"),
		RelayUser:     getEnv("RELAY_USER", ""),
		RelayPassword: getEnv("RELAY_PASSWORD", ""),

		SMSPort:           getEnv("SMS_PORT", ""),
		SMSBaud:           getEnvAsInt("SMS_BAUD", 115200),
		SMSNumber:         getEnv("SMS_NUMBER", ""),
		SMSCountryCode:    getEnv("SMS_COUNTRY_CODE", "63"),
		SMSTurnOnMessage:  getEnv("SMS_TURN_ON_MESSAGE", "Successfully turned on device"),
		SMSTurnOffMessage: getEnv("SMS_TURN_OFF_MESSAGE", "Devices are turned off"),

		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}
}

// RTSPURL returns StreamURL when set, otherwise an rtsp:// URL assembled from
// the camera fields. Credentials are escaped so passwords containing '@' work.
func (c *Config) RTSPURL() string {
	if c.StreamURL != "" {
		return c.StreamURL
	}

	u := url.URL{
		Scheme: "rtsp",
		Host:   c.CameraHost + ":" + strconv.Itoa(c.CameraPort),
	}
	if c.CameraUser != "" {
		u.User = url.UserPassword(c.CameraUser, c.CameraPassword)
	}

	u.Path, u.RawQuery, _ = strings.Cut(c.CameraPath, "?")
	return u.String()
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

// getEnvAsDuration accepts Go durations ("1500ms") or plain seconds ("5").
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
