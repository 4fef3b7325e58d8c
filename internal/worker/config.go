package worker

import "time"

type Config struct {
	DBDSN           string        `envconfig:"WPS_DB_DSN" required:"true"`
	MetricsAddr     string        `envconfig:"WPS_METRICS_ADDR" default:"0.0.0.0:9091"`
	LogLevel        string        `envconfig:"WPS_LOG_LEVEL" default:"info"`
	IdleBackoff     time.Duration `envconfig:"WORKER_IDLE_BACKOFF" default:"5s"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"120s"`

	// BI platform connection.
	BIBaseURL      string   `envconfig:"BI_BASE_URL" required:"true"`
	BIAuthority    string   `envconfig:"BI_AUTH_AUTHORITY" required:"true"`
	BITenant       string   `envconfig:"BI_AUTH_TENANT" required:"true"`
	BIClientID     string   `envconfig:"BI_AUTH_CLIENT_ID" required:"true"`
	BIClientSecret string   `envconfig:"BI_AUTH_CLIENT_SECRET" required:"true"`
	BIResource     string   `envconfig:"BI_AUTH_RESOURCE" default:""`
	BIScopes       []string `envconfig:"BI_AUTH_SCOPES" default:""`

	// Drive (folder) platform connection. Optional; requests carrying an
	// import_folder_path fail when unset.
	DriveBaseURL      string   `envconfig:"DRIVE_BASE_URL" default:""`
	DriveAuthority    string   `envconfig:"DRIVE_AUTH_AUTHORITY" default:""`
	DriveTenant       string   `envconfig:"DRIVE_AUTH_TENANT" default:""`
	DriveClientID     string   `envconfig:"DRIVE_AUTH_CLIENT_ID" default:""`
	DriveClientSecret string   `envconfig:"DRIVE_AUTH_CLIENT_SECRET" default:""`
	DriveResource     string   `envconfig:"DRIVE_AUTH_RESOURCE" default:""`
	DriveScopes       []string `envconfig:"DRIVE_AUTH_SCOPES" default:""`

	// Provisioning behavior.
	NamePrefix      string `envconfig:"WORKER_NAME_PREFIX" default:""`
	TemplatePath    string `envconfig:"WORKER_TEMPLATE_PATH" required:"true"`
	TemplateRootDir string `envconfig:"WORKER_TEMPLATE_ROOT" required:"true"`
}
