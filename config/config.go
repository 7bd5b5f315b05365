/*
Copyright 2024 Svelto Authors.

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
	DEFAULT_PORT = "5401"

	// DEFAULT_MATCH_THRESHOLD is the score at or above which a single best
	// candidate is auto-accepted without human review.
	DEFAULT_MATCH_THRESHOLD = 95

	// DEFAULT_BATCH_CAP bounds one auto-match pass over pending
	// transactions.
	DEFAULT_BATCH_CAP = 200
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"SVELTO_SERVER_SSL"`
	SecretKey string `json:"secret_key" envconfig:"SVELTO_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"SVELTO_SERVER_SSL_DOMAIN"`
	Port      string `json:"port" envconfig:"SVELTO_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"SVELTO_DATA_SOURCE_DNS"`
}

// MatchingConfig tunes the auto-match orchestrator.
type MatchingConfig struct {
	// AcceptThreshold is the minimum score for auto-acceptance.
	AcceptThreshold int `json:"accept_threshold" envconfig:"SVELTO_MATCHING_ACCEPT_THRESHOLD"`
	// AllowMultipleAboveThreshold permits the pick-highest rule when more
	// than one candidate clears the threshold. Off by default so ties go
	// to human adjudication.
	AllowMultipleAboveThreshold bool `json:"allow_multiple_above_threshold" envconfig:"SVELTO_MATCHING_ALLOW_MULTIPLE"`
	// BatchCap bounds one orchestrator pass.
	BatchCap int `json:"batch_cap" envconfig:"SVELTO_MATCHING_BATCH_CAP"`
}

// SyncConfig tunes the background sync scheduler.
type SyncConfig struct {
	// IntervalMinutes between scheduled sync passes.
	IntervalMinutes int `json:"interval_minutes" envconfig:"SVELTO_SYNC_INTERVAL_MINUTES"`
	// OverlapMinutes is subtracted from each checkpoint so late-arriving
	// upstream records are not skipped.
	OverlapMinutes int `json:"overlap_minutes" envconfig:"SVELTO_SYNC_OVERLAP_MINUTES"`
}

type VaultConfig struct {
	// MasterKey is the hex-encoded 256-bit key wrapping per-secret data
	// keys.
	MasterKey string `json:"master_key" envconfig:"SVELTO_VAULT_MASTER_KEY"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"SVELTO_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"SVELTO_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"SVELTO_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName   string           `json:"project_name" envconfig:"SVELTO_PROJECT_NAME"`
	DefaultTenant string           `json:"default_tenant" envconfig:"SVELTO_DEFAULT_TENANT"`
	Server        ServerConfig     `json:"server"`
	DataSource    DataSourceConfig `json:"data_source"`
	Matching      MatchingConfig   `json:"matching"`
	Sync          SyncConfig       `json:"sync"`
	Vault         VaultConfig      `json:"vault"`
	Notification  Notification     `json:"notification"`
	RateLimit     RateLimitConfig  `json:"rate_limit"`
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
	err = envconfig.Process("svelto", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called svelto.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Svelto Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Vault.MasterKey == "" {
		log.Println("Error: Vault master key is empty. It's a required field.")
		return errors.New("vault master key is required")
	}

	if cnf.DefaultTenant == "" {
		cnf.DefaultTenant = "default"
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Vault.MasterKey = strings.TrimSpace(cnf.Vault.MasterKey)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Matching.AcceptThreshold <= 0 || cnf.Matching.AcceptThreshold > 100 {
		cnf.Matching.AcceptThreshold = DEFAULT_MATCH_THRESHOLD
	}
	if cnf.Matching.BatchCap <= 0 {
		cnf.Matching.BatchCap = DEFAULT_BATCH_CAP
	}

	if cnf.Sync.IntervalMinutes <= 0 {
		cnf.Sync.IntervalMinutes = 60
	}
	if cnf.Sync.OverlapMinutes <= 0 {
		cnf.Sync.OverlapMinutes = 30
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

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
		log.Printf("Warning: Rate limit cleanup interval not specified. Setting default value: %d seconds", defaultCleanup)
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
