package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:  "~/.shallot",
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Path: "~/.shallot/shallot.db",
		},
		Web: WebConfig{
			Enabled:     true,
			Host:        "127.0.0.1",
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Auth: AuthConfig{
			JWTSecret:       "${SHALLOT_JWT_SECRET}",
			TokenTTLMinutes: 30,
			EncryptionKey:   "${SHALLOT_ENCRYPTION_KEY}",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
		Vidalia: VidaliaConfig{
			Host:         "127.0.0.1",
			Port:         5000,
			APIURL:       "${SO_API_URL}",
			ClientID:     "${SO_CLIENT_ID}",
			ClientSecret: "${SO_CLIENT_SECRET}",
			VerifySSL:    true,
			AlertsLimit:  100,
			CacheTTL:     300,
		},
	}
}
