package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultIdleTimeout    = 120 * time.Second
	defaultGatewayTimeout = 20 * time.Second
)

// Config captures runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	PSP       PSPConfig
	PubSub    PubSubConfig
	Checkout  CheckoutConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings for identity verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores document store parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PSPConfig collects payment provider secrets. Values may be secret://
// references resolved at startup.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
}

// PubSubConfig names the topic order lifecycle events are published to.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// CheckoutConfig carries the gateway redirect targets and the round-trip bound.
type CheckoutConfig struct {
	SuccessURL     string
	CancelURL      string
	Currency       string
	GatewayTimeout time.Duration
}

// Load reads configuration from the environment, optionally hydrated from a
// local .env file (existing environment variables win).
func Load() (Config, error) {
	if err := loadEnvFile(envOr("ENV_FILE", defaultEnvFile)); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         envOr("PORT", defaultPort),
			ReadTimeout:  durationOr("SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationOr("SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationOr("SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       envOr("FIREBASE_PROJECT_ID", ""),
			CredentialsFile: envOr("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    envOr("FIRESTORE_PROJECT_ID", envOr("GOOGLE_CLOUD_PROJECT", "")),
			EmulatorHost: envOr("FIRESTORE_EMULATOR_HOST", ""),
		},
		PSP: PSPConfig{
			StripeAPIKey:        envOr("STRIPE_API_KEY", ""),
			StripeWebhookSecret: envOr("STRIPE_WEBHOOK_SECRET", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:        envOr("PUBSUB_PROJECT_ID", envOr("GOOGLE_CLOUD_PROJECT", "")),
			OrderEventsTopic: envOr("ORDER_EVENTS_TOPIC", ""),
		},
		Checkout: CheckoutConfig{
			SuccessURL:     envOr("CHECKOUT_SUCCESS_URL", ""),
			CancelURL:      envOr("CHECKOUT_CANCEL_URL", ""),
			Currency:       strings.ToUpper(envOr("CHECKOUT_CURRENCY", "USD")),
			GatewayTimeout: durationOr("CHECKOUT_GATEWAY_TIMEOUT", defaultGatewayTimeout),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		return Config{}, fmt.Errorf("config: FIRESTORE_PROJECT_ID (or GOOGLE_CLOUD_PROJECT) is required")
	}
	return cfg, nil
}

// loadEnvFile hydrates the process environment from a KEY=VALUE file. Missing
// files are not an error; malformed lines are skipped.
func loadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
