package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	DataPath     string `envconfig:"DATA_PATH" default:"/app/data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/compute.db"`
	LogPath      string `envconfig:"LOG_PATH" default:"/app/data/compute.log"`
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`

	// Cloud provider
	ProviderBaseURL string `envconfig:"PROVIDER_BASE_URL" default:"https://api.digitalocean.com/v2"`
	ProviderToken   string `envconfig:"PROVIDER_TOKEN" default:""`

	// SSH access to provisioned VMs
	SSHUser string `envconfig:"SSH_USER" default:"root"`
	SSHPort int    `envconfig:"SSH_PORT" default:"22"`

	// Provisioning poll budgets
	StatusPollAttempts int    `envconfig:"STATUS_POLL_ATTEMPTS" default:"60"`
	StatusPollInterval string `envconfig:"STATUS_POLL_INTERVAL" default:"5s"`
	ReachPollAttempts  int    `envconfig:"REACH_POLL_ATTEMPTS" default:"30"`
	ReachPollInterval  string `envconfig:"REACH_POLL_INTERVAL" default:"5s"`

	// TTL reaper schedule (cron spec); empty disables the reaper.
	ReaperSchedule string `envconfig:"REAPER_SCHEDULE" default:"@every 5m"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("COMPUTE", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}

// PollInterval parses the named duration setting, falling back to def when the
// value is missing or malformed.
func PollInterval(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
