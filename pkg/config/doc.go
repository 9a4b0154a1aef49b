// Package config loads application configuration from environment
// variables into tagged structs, wrapping github.com/caarlos0/env/v11
// for parsing and github.com/joho/godotenv for optional .env files.
//
// # Usage
//
//	type RedisConfig struct {
//	    URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
//	}
//
//	var cfg RedisConfig
//	config.MustLoad(&cfg)
package config
