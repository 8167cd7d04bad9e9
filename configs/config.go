package config

import "os"

type Config struct {
	TwitterClientID       string
	TwitterClientSecret   string
	TwitterRedirectURI    string
	LinkedinClientID      string
	LinkedinClientSecret  string
	LinkedinRedirectURI   string
	InstagramClientID     string
	InstagramClientSecret string
	InstagramRedirectURI  string
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleRedirectURI     string
	PostgresURI           string
	RedisURI              string
	FrontendURL           string
	SecretKey             string
	CookieName            string
	CronSecret            string
}

func LoadConfig() *Config {
	return &Config{
		TwitterClientID:       getEnv("TWITTER_CLIENT_ID", ""),
		TwitterClientSecret:   getEnv("TWITTER_CLIENT_SECRET", ""),
		TwitterRedirectURI:    getEnv("TWITTER_REDIRECT_URI", ""),
		LinkedinClientID:      getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedinClientSecret:  getEnv("LINKEDIN_CLIENT_SECRET", ""),
		LinkedinRedirectURI:   getEnv("LINKEDIN_REDIRECT_URI", ""),
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		InstagramRedirectURI:  getEnv("INSTAGRAM_REDIRECT_URI", ""),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:     getEnv("GOOGLE_REDIRECT_URI", ""),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", "127.0.0.1:6379"),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:5173"),
		SecretKey:             getEnv("SECRET_KEY", ""),
		CookieName:            getEnv("COOKIE_NAME", "postpulse_session"),
		CronSecret:            getEnv("CRON_SECRET", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
