package github

import (
	"net/http"

	"github.com/google/go-github/v59/github"
	"go.uber.org/zap"

	"github.com/simplesurance/backportd/internal/logfields"
	"github.com/simplesurance/backportd/internal/provider"
)

const loggerName = "github-event-provider"

// Provider listens for github-webhook http-requests at a http-server handler,
// validates and converts the requests to Events and forwards them to an
// event channel.
type Provider struct {
	logger        *zap.Logger
	webhookSecret []byte
	c             chan<- *provider.Event
}

type option func(*Provider)

func WithPayloadSecret(secret string) option {
	return func(p *Provider) {
		p.webhookSecret = []byte(secret)
	}
}

func New(eventChan chan<- *provider.Event, opts ...option) *Provider {
	p := Provider{
		c: eventChan,
	}

	for _, o := range opts {
		o(&p)
	}

	if p.logger == nil {
		p.logger = zap.L().Named(loggerName)
	}

	return &p
}

func (p *Provider) HTTPHandler(resp http.ResponseWriter, req *http.Request) {
	deliveryID := github.DeliveryID(req)
	hookType := github.WebHookType(req)

	logger := p.logger.With(
		logfields.EventProvider("github"),
		zap.String("github.delivery_id", deliveryID),
		zap.String("github.webhook_type", hookType),
	)

	payload, err := github.ValidatePayload(req, p.webhookSecret)
	if err != nil {
		logger.Info(
			"received invalid http request, payload validation failed",
			logfields.Event("github_http_request_validation_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	event, err := github.ParseWebHook(hookType, payload)
	if err != nil {
		logger.Info(
			"received invalid http request, parsing failed",
			logfields.Event("github_event_parsing_failed"),
			zap.Error(err),
		)
		http.Error(resp, err.Error(), http.StatusBadRequest)
		return
	}

	ev := provider.Event{
		JSON:       payload,
		Provider:   "github",
		DeliveryID: deliveryID,
		EventType:  hookType,
	}

	switch event := event.(type) {
	case *github.PullRequestEvent:
		ev.Action = event.GetAction()

		if repo := event.GetRepo(); repo != nil {
			ev.RepoOwner = repo.GetOwner().GetLogin()
			ev.Repository = repo.GetName()
		}

		if pr := event.GetPullRequest(); pr != nil {
			ev.PRNumber = pr.GetNumber()
		}

		ev.Label = event.GetLabel().GetName()

	case *github.IssueCommentEvent:
		ev.Action = event.GetAction()

		if repo := event.GetRepo(); repo != nil {
			ev.RepoOwner = repo.GetOwner().GetLogin()
			ev.Repository = repo.GetName()
		}

		if issue := event.GetIssue(); issue != nil {
			// only comments on pull requests are relevant
			if !issue.IsPullRequest() {
				logger.Debug(
					"ignoring comment on an issue",
					logfields.Event("github_issue_comment_ignored"),
				)
				return
			}

			ev.PRNumber = issue.GetNumber()
		}

		ev.CommentBody = event.GetComment().GetBody()

	default:
		logger.Debug("ignoring event, event type is unsupported",
			logfields.Event("github_unsupported_event_received"),
		)
		return
	}

	select {
	case p.c <- &ev:
		logger.Debug("event forwarded to channel",
			logfields.Event("github_event_forwarded"),
		)

	default:
		logger.Warn(
			"event lost, forwarding event to channel failed",
			zap.String("error", "could not forward event to channel, send would have blocked"),
			logfields.Event("github_forwarding_event_failed"),
		)

		http.Error(resp, "queue full", http.StatusServiceUnavailable)
	}
}
