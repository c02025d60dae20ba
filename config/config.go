/*
Copyright 2025 Halcyon Pay Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"TAKO_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"TAKO_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"TAKO_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"TAKO_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"TAKO_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"TAKO_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	EventQueue string `json:"event_queue" envconfig:"TAKO_QUEUE_EVENT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"TAKO_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"TAKO_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"TAKO_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

// TransferConfig bounds the settlement engine's optimistic-concurrency retry
// loop.
type TransferConfig struct {
	MaxRetries     int `json:"max_retries" envconfig:"TAKO_TRANSFER_MAX_RETRIES"`
	LockTTLSeconds int `json:"lock_ttl_seconds" envconfig:"TAKO_TRANSFER_LOCK_TTL_SECONDS"`
}

// SplitConfig carries the participant and share limits applied to bill
// splits, plus the expiry policy for unresolved payment requests.
type SplitConfig struct {
	MinShare        int64 `json:"min_share" envconfig:"TAKO_SPLIT_MIN_SHARE"`
	MaxShare        int64 `json:"max_share" envconfig:"TAKO_SPLIT_MAX_SHARE"`
	MaxParticipants int   `json:"max_participants" envconfig:"TAKO_SPLIT_MAX_PARTICIPANTS"`
	ExpiryMinutes   int   `json:"expiry_minutes" envconfig:"TAKO_SPLIT_EXPIRY_MINUTES"`
	ReverseOnExpiry bool  `json:"reverse_on_expiry" envconfig:"TAKO_SPLIT_REVERSE_ON_EXPIRY"`
}

// TipsConfig maps recipient roles to a distribution mode ("direct" or
// "pooled").
type TipsConfig struct {
	RoleModes map[string]string `json:"role_modes"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"TAKO_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
	Transfer     TransferConfig   `json:"transfer"`
	Split        SplitConfig      `json:"split"`
	Tips         TipsConfig       `json:"tips"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("tako", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called tako.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Tako Ledger"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.EventQueue == "" {
		cnf.Queue.EventQueue = "tako:events"
	}

	if cnf.Transfer.MaxRetries <= 0 {
		cnf.Transfer.MaxRetries = 3
	}
	if cnf.Transfer.LockTTLSeconds <= 0 {
		cnf.Transfer.LockTTLSeconds = 120
	}

	if cnf.Split.MaxParticipants <= 0 {
		cnf.Split.MaxParticipants = 20
	}
	if cnf.Split.MinShare <= 0 {
		cnf.Split.MinShare = 1
	}
	if cnf.Split.MaxShare <= 0 {
		cnf.Split.MaxShare = 10_000_000
	}
	if cnf.Split.ExpiryMinutes <= 0 {
		cnf.Split.ExpiryMinutes = 24 * 60
	}

	if cnf.Tips.RoleModes == nil {
		cnf.Tips.RoleModes = map[string]string{
			"driver":       "direct",
			"courier":      "direct",
			"valet":        "direct",
			"branch_staff": "pooled",
		}
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	_ = mockConfig.validateAndAddDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
