package github

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/backportd/internal/provider"
)

const labeledPREventPayload = `{
	"action": "labeled",
	"number": 42,
	"pull_request": {
		"number": 42,
		"title": "fix the foo"
	},
	"label": {
		"name": "target/release-5.0"
	},
	"repository": {
		"name": "repo",
		"owner": {
			"login": "owner"
		}
	}
}`

const prCommentEventPayload = `{
	"action": "created",
	"issue": {
		"number": 13,
		"pull_request": {
			"url": "https://api.github.com/repos/owner/repo/pulls/13"
		}
	},
	"comment": {
		"body": "/backport release-5.0"
	},
	"repository": {
		"name": "repo",
		"owner": {
			"login": "owner"
		}
	}
}`

const issueCommentEventPayload = `{
	"action": "created",
	"issue": {
		"number": 13
	},
	"comment": {
		"body": "/backport release-5.0"
	},
	"repository": {
		"name": "repo",
		"owner": {
			"login": "owner"
		}
	}
}`

func newWebhookRequest(eventType, payload string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/listener/github", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")

	return req
}

func TestHTTPHandlerForwardsLabeledPREvent(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *provider.Event, 1)
	p := New(ch)

	resp := httptest.NewRecorder()
	p.HTTPHandler(resp, newWebhookRequest("pull_request", labeledPREventPayload))

	require.Equal(t, http.StatusOK, resp.Code)

	var ev *provider.Event
	select {
	case ev = <-ch:
	default:
		t.Fatal("no event was forwarded to the channel")
	}

	assert.Equal(t, "github", ev.Provider)
	assert.Equal(t, "delivery-1", ev.DeliveryID)
	assert.Equal(t, "pull_request", ev.EventType)
	assert.Equal(t, "labeled", ev.Action)
	assert.Equal(t, "owner", ev.RepoOwner)
	assert.Equal(t, "repo", ev.Repository)
	assert.Equal(t, 42, ev.PRNumber)
	assert.Equal(t, "target/release-5.0", ev.Label)
	assert.JSONEq(t, labeledPREventPayload, string(ev.JSON))
}

func TestHTTPHandlerForwardsPRCommentEvent(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *provider.Event, 1)
	p := New(ch)

	resp := httptest.NewRecorder()
	p.HTTPHandler(resp, newWebhookRequest("issue_comment", prCommentEventPayload))

	require.Equal(t, http.StatusOK, resp.Code)

	var ev *provider.Event
	select {
	case ev = <-ch:
	default:
		t.Fatal("no event was forwarded to the channel")
	}

	assert.Equal(t, "issue_comment", ev.EventType)
	assert.Equal(t, "created", ev.Action)
	assert.Equal(t, 13, ev.PRNumber)
	assert.Equal(t, "/backport release-5.0", ev.CommentBody)
}

func TestHTTPHandlerIgnoresCommentsOnPlainIssues(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *provider.Event, 1)
	p := New(ch)

	resp := httptest.NewRecorder()
	p.HTTPHandler(resp, newWebhookRequest("issue_comment", issueCommentEventPayload))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, ch)
}

func TestHTTPHandlerRejectsInvalidSignature(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *provider.Event, 1)
	p := New(ch, WithPayloadSecret("webhook-secret"))

	req := newWebhookRequest("pull_request", labeledPREventPayload)
	req.Header.Set("X-Hub-Signature", "sha1=0000000000000000000000000000000000000000")

	resp := httptest.NewRecorder()
	p.HTTPHandler(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, ch)
}

func TestHTTPHandlerRespondsServiceUnavailableWhenChannelIsFull(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	ch := make(chan *provider.Event)
	p := New(ch)

	resp := httptest.NewRecorder()
	p.HTTPHandler(resp, newWebhookRequest("pull_request", labeledPREventPayload))

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
