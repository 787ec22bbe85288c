package cfg

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(strings.NewReader(`github_api_token = "token123"`))
	require.NoError(t, err)

	assert.Equal(t, "token123", cfg.GithubAPIToken)
	assert.Equal(t, DefTargetLabelPrefix, cfg.TargetLabelPrefix)
	assert.Equal(t, DefMergedLabelPrefix, cfg.MergedLabelPrefix)
	assert.Equal(t, DefBackportLabel, cfg.BackportLabel)
	assert.Equal(t, DefBranchPrefix, cfg.BranchPrefix)
	assert.Equal(t, DefGitUserName, cfg.GitUserName)
	assert.Equal(t, DefGitUserEmail, cfg.GitUserEmail)
	assert.Equal(t, DefForkPollInterval, cfg.ForkPollInterval())
	assert.Equal(t, DefForkPollMaxAttempts, cfg.ForkPollMaxAttempts)
	assert.Equal(t, "/listener/github", cfg.HTTPGithubWebhookEndpoint)
	assert.Equal(t, "/metrics", cfg.HTTPMetricsEndpoint)
	assert.Equal(t, "logfmt", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.WorkDir)
}

func TestLoadParsesAllFields(t *testing.T) {
	const doc = `
http_server_listen_addr = ":8084"
github_webhook_endpoint = "/hooks/github"
github_webhook_secret = "hooksecret"
github_api_token = "token123"
work_dir = "/var/lib/backportd"
git_user_name = "release-bot"
git_user_email = "release-bot@example.com"
target_label_prefix = "backport-to/"
merged_label_prefix = "backported/"
backport_label = "automated"
backport_branch_prefix = "bp"
fork_poll_interval_seconds = 2
fork_poll_max_attempts = 7
filter_query = '.repository.private == false'
log_format = "json"
log_level = "debug"
`

	cfg, err := Load(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, ":8084", cfg.HTTPListenAddr)
	assert.Equal(t, "/hooks/github", cfg.HTTPGithubWebhookEndpoint)
	assert.Equal(t, "hooksecret", cfg.GithubWebHookSecret)
	assert.Equal(t, "/var/lib/backportd", cfg.WorkDir)
	assert.Equal(t, "release-bot", cfg.GitUserName)
	assert.Equal(t, "release-bot@example.com", cfg.GitUserEmail)
	assert.Equal(t, "backport-to/", cfg.TargetLabelPrefix)
	assert.Equal(t, "backported/", cfg.MergedLabelPrefix)
	assert.Equal(t, "automated", cfg.BackportLabel)
	assert.Equal(t, "bp", cfg.BranchPrefix)
	assert.Equal(t, 2*time.Second, cfg.ForkPollInterval())
	assert.Equal(t, 7, cfg.ForkPollMaxAttempts)
	assert.Equal(t, `.repository.private == false`, cfg.FilterQuery)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFailsWithoutAPIToken(t *testing.T) {
	_, err := Load(strings.NewReader(`log_level = "debug"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github_api_token")
}

func TestLoadFailsOnInvalidTOML(t *testing.T) {
	_, err := Load(strings.NewReader(`github_api_token = `))
	require.Error(t, err)
}

func TestMarshalRoundtrip(t *testing.T) {
	cfg, err := Load(strings.NewReader(`github_api_token = "token123"`))
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, cfg.Marshal(&sb))

	reloaded, err := Load(strings.NewReader(sb.String()))
	require.NoError(t, err)

	assert.Equal(t, cfg, reloaded)
}
