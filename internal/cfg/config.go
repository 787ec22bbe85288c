// Package cfg loads the backportd configuration file.
package cfg

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	DefTargetLabelPrefix = "target/"
	DefMergedLabelPrefix = "merged/"
	DefBackportLabel     = "backport"
	DefBranchPrefix      = "backport"

	DefGitUserName  = "backport-bot"
	DefGitUserEmail = "backport-bot@localhost"

	DefForkPollInterval    = 5 * time.Second
	DefForkPollMaxAttempts = 20
)

type Config struct {
	HTTPListenAddr            string `toml:"http_server_listen_addr"`
	HTTPSListenAddr           string `toml:"https_server_listen_addr"`
	HTTPSCertFile             string `toml:"https_ssl_cert_file"`
	HTTPSKeyFile              string `toml:"https_ssl_key_file"`
	HTTPGithubWebhookEndpoint string `toml:"github_webhook_endpoint"`
	HTTPMetricsEndpoint       string `toml:"metrics_endpoint"`
	GithubWebHookSecret       string `toml:"github_webhook_secret"`
	GithubAPIToken            string `toml:"github_api_token"`

	// WorkDir is the base directory for per-job git workspaces.
	// If empty, a directory below os.TempDir() is used.
	WorkDir string `toml:"work_dir"`

	GitUserName  string `toml:"git_user_name"`
	GitUserEmail string `toml:"git_user_email"`

	TargetLabelPrefix string `toml:"target_label_prefix"`
	MergedLabelPrefix string `toml:"merged_label_prefix"`
	BackportLabel     string `toml:"backport_label"`

	// BranchPrefix is the first path element of generated temporary
	// backport branch names.
	BranchPrefix string `toml:"backport_branch_prefix"`

	ForkPollIntervalSeconds int `toml:"fork_poll_interval_seconds"`
	ForkPollMaxAttempts     int `toml:"fork_poll_max_attempts"`

	// FilterQuery is an optional jq expression that is evaluated on the
	// JSON payload of received webhook events. When it is set, only
	// events for that the query evaluates to true trigger backports.
	FilterQuery string `toml:"filter_query"`

	LogFormat  string `toml:"log_format"`
	LogTimeKey string `toml:"log_time_key"`
	LogLevel   string `toml:"log_level"`
}

func Load(reader io.Reader) (*Config, error) {
	var result Config

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}

	result.applyDefaults()

	if err := result.validate(); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Config) applyDefaults() {
	if c.TargetLabelPrefix == "" {
		c.TargetLabelPrefix = DefTargetLabelPrefix
	}

	if c.MergedLabelPrefix == "" {
		c.MergedLabelPrefix = DefMergedLabelPrefix
	}

	if c.BackportLabel == "" {
		c.BackportLabel = DefBackportLabel
	}

	if c.BranchPrefix == "" {
		c.BranchPrefix = DefBranchPrefix
	}

	if c.GitUserName == "" {
		c.GitUserName = DefGitUserName
	}

	if c.GitUserEmail == "" {
		c.GitUserEmail = DefGitUserEmail
	}

	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(os.TempDir(), "backportd")
	}

	if c.ForkPollIntervalSeconds <= 0 {
		c.ForkPollIntervalSeconds = int(DefForkPollInterval / time.Second)
	}

	if c.ForkPollMaxAttempts <= 0 {
		c.ForkPollMaxAttempts = DefForkPollMaxAttempts
	}

	if c.HTTPGithubWebhookEndpoint == "" {
		c.HTTPGithubWebhookEndpoint = "/listener/github"
	}

	if c.HTTPMetricsEndpoint == "" {
		c.HTTPMetricsEndpoint = "/metrics"
	}

	if c.LogFormat == "" {
		c.LogFormat = "logfmt"
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.GithubAPIToken == "" {
		return fmt.Errorf("github_api_token is not set")
	}

	return nil
}

func (c *Config) ForkPollInterval() time.Duration {
	return time.Duration(c.ForkPollIntervalSeconds) * time.Second
}

func (c *Config) Marshal(writer io.Writer) error {
	return toml.NewEncoder(writer).Encode(c)
}
