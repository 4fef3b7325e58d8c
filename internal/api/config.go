package api

import "time"

type Config struct {
	HTTPAddr        string        `envconfig:"WPS_HTTP_ADDR" default:"0.0.0.0:8080"`
	DBDSN           string        `envconfig:"WPS_DB_DSN" required:"true"`
	MetricsAddr     string        `envconfig:"WPS_METRICS_ADDR" default:"0.0.0.0:9090"`
	LogLevel        string        `envconfig:"WPS_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"WPS_SHUTDOWN_TIMEOUT" default:"30s"`

	// BI platform access for the synchronous embed-token endpoint.
	BIBaseURL      string   `envconfig:"BI_BASE_URL" required:"true"`
	BIAuthority    string   `envconfig:"BI_AUTH_AUTHORITY" required:"true"`
	BITenant       string   `envconfig:"BI_AUTH_TENANT" required:"true"`
	BIClientID     string   `envconfig:"BI_AUTH_CLIENT_ID" required:"true"`
	BIClientSecret string   `envconfig:"BI_AUTH_CLIENT_SECRET" required:"true"`
	BIResource     string   `envconfig:"BI_AUTH_RESOURCE" default:""`
	BIScopes       []string `envconfig:"BI_AUTH_SCOPES" default:""`
}
