package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/x402-rs/x402-client-go/pkg/network"
)

// DefaultFunctionBaseURL is the resource server used by function mode when
// RESOURCE_SERVER_URL is unset
const DefaultFunctionBaseURL = "https://xluihnzwcmxybtygewvy.supabase.co"

// Mode selects which variables are required
type Mode int

const (
	// ModeRequest needs a full base URL and endpoint path
	ModeRequest Mode = iota
	// ModeFunction derives the path from a function name
	ModeFunction
)

// Config holds the application configuration
type Config struct {
	PrivateKey   string
	BaseURL      string
	EndpointPath string
	BearerToken  string
	FunctionName string

	// MaxValue caps a single payment in USDC atomic units; nil means no cap
	MaxValue *big.Int
	RPCURL   string

	StrictExit   bool
	LogLevel     string
	OTLPEndpoint string
	ServiceName  string
}

// MissingError lists required variables that were not set
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Vars, ", "))
}

// LoadDotEnv loads a .env file from the working directory, if present.
// Variables already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// FunctionOverride returns FUNCTION_NAME, which fixes the function to call
func FunctionOverride() string {
	LoadDotEnv()
	return os.Getenv("FUNCTION_NAME")
}

// Load loads configuration from environment variables
func Load(mode Mode) (*Config, error) {
	LoadDotEnv()

	defaultBaseURL := ""
	if mode == ModeFunction {
		defaultBaseURL = DefaultFunctionBaseURL
	}

	cfg := &Config{
		PrivateKey:   strings.TrimSpace(os.Getenv("PRIVATE_KEY")),
		BaseURL:      strings.TrimRight(getEnvOrDefault("RESOURCE_SERVER_URL", defaultBaseURL), "/"),
		EndpointPath: os.Getenv("ENDPOINT_PATH"),
		BearerToken:  os.Getenv("SUPABASE_ANON_KEY"),
		FunctionName: os.Getenv("FUNCTION_NAME"),
		RPCURL:       os.Getenv("RPC_URL_BASE"),
		LogLevel:     getEnvOrDefault("LOG_LEVEL", "info"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:  getEnvOrDefault("OTEL_SERVICE_NAME", serviceName(mode)),
	}

	var missing []string
	if cfg.PrivateKey == "" {
		missing = append(missing, "PRIVATE_KEY")
	}
	if mode == ModeRequest {
		if cfg.BaseURL == "" {
			missing = append(missing, "RESOURCE_SERVER_URL")
		}
		if cfg.EndpointPath == "" {
			missing = append(missing, "ENDPOINT_PATH")
		}
	}
	if len(missing) > 0 {
		return nil, &MissingError{Vars: missing}
	}

	if v := os.Getenv("MAX_PAYMENT_USDC"); v != "" {
		maxValue, err := network.ParseAmount(v, network.USDCDecimals)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_PAYMENT_USDC: %w", err)
		}
		cfg.MaxValue = maxValue
	}

	if v := os.Getenv("X402_STRICT_EXIT"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid X402_STRICT_EXIT: %w", err)
		}
		cfg.StrictExit = strict
	}

	return cfg, nil
}

// Headers returns the default headers sent with every request
func (c *Config) Headers() map[string]string {
	if c.BearerToken == "" {
		return map[string]string{}
	}
	return map[string]string{
		"Authorization": "Bearer " + c.BearerToken,
		"Content-Type":  "application/json",
	}
}

func serviceName(mode Mode) string {
	if mode == ModeFunction {
		return "x402-function"
	}
	return "x402-request"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
