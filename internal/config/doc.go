// Package config provides configuration management for the Alcance assistant.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files and
// environment variables. It provides a type-safe configuration structure with
// validation, default values, and automatic file creation.
//
// # Configuration File
//
// The configuration is stored at ~/.alcance/config.yaml and is automatically
// created with defaults on first use.
//
// # Environment Variables
//
// All configuration values can be overridden using environment variables
// with the ALCANCE_ prefix. Nested fields are separated by underscores.
//
// Examples:
//   - ALCANCE_LLM_PROVIDERS_OPENAI_API_KEY=sk-...
//   - ALCANCE_ASSISTANT_VARIANT=notes
//   - ALCANCE_USAGE_BACKEND=redis
//   - ALCANCE_LOGGING_LEVEL=debug
//
// Secrets that the hosted deployment exposes under conventional names
// (OPENAI_API_KEY, DEEPSEEK_API_KEY, STRIPE_SECRET_KEY, STRIPE_WEBHOOK_SECRET,
// STRIPE_PRICE_ID_PRO, STRIPE_PRICE_ID_ECO, GOOGLE_CLIENT_ID,
// GOOGLE_CLIENT_SECRET, SESSION_SECRET, APP_URL) are used when the
// corresponding config value is empty.
package config
