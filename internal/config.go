package internal

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type (
	BackendConfig struct {
		URL       string        `yaml:"url" env:"STORY_BACKEND_URL" env-default:"http://localhost:5000"`
		Timeout   time.Duration `yaml:"timeout" env:"STORY_BACKEND_TIMEOUT"`
		RateLimit float64       `yaml:"rate_limit"`
		RateBurst int           `yaml:"rate_burst" env-default:"1"`
	}

	KafkaConfig struct {
		Brokers    []string `yaml:"brokers"`
		Group      string   `yaml:"group" env-default:"storyfront-events"`
		EventTopic string   `yaml:"event_topic" env-default:"story_events"`
	}

	AppConfig struct {
		Port             string        `yaml:"port" env:"PORT" env-default:"9000"`
		TemplateGLOB     string        `yaml:"template_glob" env-default:"templates/*.html"`
		CookieSecret     string        `yaml:"cookie_secret" env:"COOKIE_SECRET"`
		MaxUploadBytes   int64         `yaml:"max_upload_bytes" env-default:"10485760"`
		SessionTTL       time.Duration `yaml:"session_ttl" env-default:"1h"`
		CopyConfirmDelay time.Duration `yaml:"copy_confirm_delay" env-default:"2s"`
		Backend          BackendConfig `yaml:"backend"`
		Kafka            KafkaConfig   `yaml:"kafka"`
	}

	WorkerConfig struct {
		Kafka        KafkaConfig   `yaml:"kafka"`
		ReportPeriod time.Duration `yaml:"report_period" env-default:"1m"`
	}
)

func ReadConfig(path string, cfg any) error {
	return cleanenv.ReadConfig(path, cfg)
}
