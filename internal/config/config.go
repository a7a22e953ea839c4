// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP HTTPServer `yaml:"http"`

	Database    Database    `yaml:"database"`
	ValKey      ValKey      `yaml:"valkey"`
	Migrate     Migrate     `yaml:"migrate"`
	Identity    Identity    `yaml:"identity"`
	Flows       Flows       `yaml:"flows"`
	Profiles    Profiles    `yaml:"profiles"`
	Housekeeper Housekeeper `yaml:"housekeeper"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"5s"`
}

type Database struct {
	Name     string              `yaml:"name"`
	Port     string              `yaml:"port"`
	Host     commoncfg.SourceRef `yaml:"host"`
	User     commoncfg.SourceRef `yaml:"user"`
	Password commoncfg.SourceRef `yaml:"password"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	Prefix    string              `yaml:"prefix"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

// Identity configures the connection to the remote identity service, the
// external system of record for credentials and sessions.
type Identity struct {
	BaseURL string              `yaml:"baseURL"`
	APIKey  commoncfg.SourceRef `yaml:"apiKey"`
	Timeout time.Duration       `yaml:"timeout" default:"10s"`
}

// Flows tunes the credential wizards.
type Flows struct {
	TTL                time.Duration `yaml:"ttl" default:"30m"`
	CompletedRetention time.Duration `yaml:"completedRetention" default:"5m"`
	CodeLength         int           `yaml:"codeLength" default:"6"`
	MinPasswordLength  int           `yaml:"minPasswordLength" default:"6"`
	ProbeCacheTTL      time.Duration `yaml:"probeCacheTTL" default:"5m"`
}

// DefaultFlows returns the flow tuning used when no configuration file is
// loaded, e.g. by the terminal client.
func DefaultFlows() Flows {
	return Flows{
		TTL:                30 * time.Minute,
		CompletedRetention: 5 * time.Minute,
		CodeLength:         6,
		MinPasswordLength:  6,
		ProbeCacheTTL:      5 * time.Minute,
	}
}

type Profiles struct {
	UsernameCacheTTL time.Duration `yaml:"usernameCacheTTL" default:"5m"`
}

type Housekeeper struct {
	TriggerInterval time.Duration `yaml:"triggerInterval" default:"5m"`
}

// Migrate optionally points the migration job at an on-disk directory of
// migration files. When Source is empty the copy embedded in the binary is
// applied.
type Migrate struct {
	Source string `yaml:"source"`
}
