package config

import "github.com/caarlos0/env/v10"

// Config holds all environment-driven settings. Loaded once at startup.
type Config struct {
	ProfilesTable       string `env:"DYNAMODB_PROFILES_TABLE,required"`
	ConversationsTable  string `env:"DYNAMODB_CONVERSATIONS_TABLE,required"`
	ChartsBucket        string `env:"S3_CHARTS_BUCKET,required"`
	AstrologySecretName string `env:"ASTROLOGY_SECRET_NAME" envDefault:"/mira/astrology/api_key"`
	GeonamesUsername    string `env:"GEONAMES_USERNAME"`
	BedrockModelID      string `env:"BEDROCK_MODEL_ID" envDefault:"openai.gpt-oss-20b-1:0"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
