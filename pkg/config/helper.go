package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

var isGCP = os.Getenv("GOOGLE_CLOUD_PROJECT") != ""

// getSecret retrieves the value of a secret from Google Cloud Secret Manager or environment variables.
func getSecret(key string) (string, error) {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID != "" {
		return accessSecretVersion(fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, key))
	}

	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("environment variable %q not set", key)
	}
	return value, nil
}

// getRequiredSecret is a helper func to get a required secret or fatal log on error.
func getRequiredSecret(key string) string {
	val, err := getSecret(key)
	if err != nil {
		log.Fatalf("FATAL: Cannot get required secret %q: %v", key, err)
	}
	if val == "" {
		log.Fatalf("FATAL: Required secret %q is empty", key)
	}
	return val
}

// getOptionalSecret is a helper func to get an optional secret with a default value.
func getOptionalSecret(key, defaultValue string) string {
	val, err := getSecret(key)
	if err != nil || val == "" {
		return defaultValue
	}
	return val
}

// parseIntOr parses an optional integer secret, falling back on missing or invalid values.
func parseIntOr(key string, defaultValue int) int {
	valStr := getOptionalSecret(key, "")
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		log.Printf("Warning: invalid integer value for %q, using %d: %v", key, defaultValue, err)
		return defaultValue
	}
	return val
}

// parseDurationOr parses an optional duration secret (e.g., "500ms", "3s").
// A bare number is read as seconds so "0.5" works like "500ms".
func parseDurationOr(key string, defaultValue time.Duration) time.Duration {
	valStr := getOptionalSecret(key, "")
	if valStr == "" {
		return defaultValue
	}
	if secs, err := strconv.ParseFloat(valStr, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		log.Printf("Warning: invalid duration value for %q, using %s: %v", key, defaultValue, err)
		return defaultValue
	}
	return val
}

// parseBoolOr parses an optional boolean secret ("true", "1", "yes").
func parseBoolOr(key string, defaultValue bool) bool {
	valStr := strings.ToLower(getOptionalSecret(key, ""))
	if valStr == "" {
		return defaultValue
	}
	return valStr == "true" || valStr == "1" || valStr == "yes"
}
