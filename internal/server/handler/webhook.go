// Package handler provides the HTTP handlers of the webhook launcher.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v73/github"
	"golang.org/x/sync/errgroup"

	"github.com/henriksa/boss-launcher-webhook/internal/config"
	"github.com/henriksa/boss-launcher-webhook/internal/core"
	"github.com/henriksa/boss-launcher-webhook/internal/dispatch"
	"github.com/henriksa/boss-launcher-webhook/internal/gitutil"
	"github.com/henriksa/boss-launcher-webhook/internal/netutil"
)

const maxConcurrentMappings = 8

// Dispatcher runs the decision engine for one mapping.
type Dispatcher interface {
	Handle(ctx context.Context, mapping *core.WebhookMapping, event *core.Event, at time.Time) (*dispatch.Result, error)
}

// Relayer forwards a received hook to a relay target.
type Relayer interface {
	Relay(ctx context.Context, target *core.RelayTarget, hook *core.Hook) error
}

// Response is the JSON body returned for accepted pushes.
type Response struct {
	Messages []string `json:"messages"`
	Error    string   `json:"error,omitempty"`
}

// WebhookHandler turns forge push hooks into engine runs on every mapping
// of the pushed repository and branch. Pushes from a known forge must come
// from one of its source IPs, and are copied to the relay targets of their
// namespace.
type WebhookHandler struct {
	cfg      *config.WebhookConfig
	mappings core.MappingStore
	sources  core.SourceStore
	relay    Relayer
	engine   Dispatcher
	now      func() time.Time
	logger   *slog.Logger
}

// NewWebhookHandler creates a new webhook handler. A nil sources store
// disables source checks and relaying.
func NewWebhookHandler(
	cfg *config.WebhookConfig,
	mappings core.MappingStore,
	sources core.SourceStore,
	relay Relayer,
	engine Dispatcher,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		cfg:      cfg,
		mappings: mappings,
		sources:  sources,
		relay:    relay,
		engine:   engine,
		now:      time.Now,
		logger:   logger,
	}
}

// GitHub processes GitHub webhook requests.
func (h *WebhookHandler) GitHub(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r)
	payload, err := github.ValidatePayload(r, []byte(h.cfg.GitHubSecret))
	if tooLarge(w, err) {
		h.logger.Warn("webhook payload too large", "limit", h.cfg.MaxPayloadBytes)
		return
	}
	if err != nil {
		h.logger.Error("invalid webhook payload signature", "error", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		h.logger.Error("could not parse webhook", "error", err)
		http.Error(w, "Could not parse webhook", http.StatusBadRequest)
		return
	}

	switch e := event.(type) {
	case *github.PushEvent:
		push, err := core.PushFromGitHub(e, payload)
		h.handlePush(w, r, push, payload, err)
	case *github.PingEvent:
		_, _ = fmt.Fprint(w, "pong")
	default:
		h.logger.Debug("ignoring unhandled webhook event type", "type", github.WebHookType(r))
		_, _ = fmt.Fprint(w, "Event type not handled")
	}
}

// GitLab processes GitLab push and tag push hooks.
func (h *WebhookHandler) GitLab(w http.ResponseWriter, r *http.Request) {
	if h.cfg.GitLabToken != "" {
		token := r.Header.Get("X-Gitlab-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.GitLabToken)) != 1 {
			h.logger.Error("invalid gitlab webhook token")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
	}

	h.limitBody(w, r)
	payload, err := io.ReadAll(r.Body)
	if tooLarge(w, err) {
		h.logger.Warn("webhook payload too large", "limit", h.cfg.MaxPayloadBytes)
		return
	}
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		http.Error(w, "Could not read body", http.StatusBadRequest)
		return
	}

	push, err := core.PushFromGitLab(payload)
	h.handlePush(w, r, push, payload, err)
}

func (h *WebhookHandler) limitBody(w http.ResponseWriter, r *http.Request) {
	if h.cfg.MaxPayloadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxPayloadBytes)
	}
}

// tooLarge answers 413 when err comes from the body limit.
func tooLarge(w http.ResponseWriter, err error) bool {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		return false
	}
	http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
	return true
}

func (h *WebhookHandler) handlePush(w http.ResponseWriter, r *http.Request, push *core.Push, payload []byte, err error) {
	ctx := r.Context()
	if errors.Is(err, core.ErrRefDeleted) {
		h.logger.Debug("ignoring ref deletion")
		_, _ = fmt.Fprint(w, "Ref deletion ignored")
		return
	}
	if err != nil {
		h.logger.Warn("could not read push event", "error", err)
		http.Error(w, "Could not parse push event", http.StatusBadRequest)
		return
	}

	locations := gitutil.Locations(gitutil.CandidateURLs(push.RepoURLs...)...)
	if h.sources != nil {
		if status, err := h.checkSource(ctx, r, locations); err != nil {
			h.logger.Warn("push rejected", "error", err, "repo", push.RepoURLs[0])
			http.Error(w, http.StatusText(status), status)
			return
		}
		h.relayHook(ctx, locations, &core.Hook{Header: r.Header.Clone(), Body: payload})
	}

	mappings, err := h.findMappings(ctx, push)
	if err != nil {
		h.logger.Error("failed to look up mappings", "error", err, "repo", push.RepoURLs[0])
		http.Error(w, "Failed to look up mappings", http.StatusInternalServerError)
		return
	}
	if len(mappings) == 0 {
		h.logger.Info("push for unmapped repository", "repo", push.RepoURLs[0], "branch", push.Branch)
		writeJSON(w, http.StatusOK, Response{Messages: []string{}})
		return
	}

	at := h.now()
	results := make([]*dispatch.Result, len(mappings))
	var g errgroup.Group
	g.SetLimit(maxConcurrentMappings)
	for i, m := range mappings {
		event := push.Event
		g.Go(func() error {
			res, err := h.engine.Handle(ctx, m, &event, at)
			results[i] = res
			if err != nil {
				return fmt.Errorf("mapping %s: %w", m, err)
			}
			return nil
		})
	}
	runErr := g.Wait()

	resp := Response{Messages: make([]string, 0, len(results))}
	for _, res := range results {
		if res != nil {
			resp.Messages = append(resp.Messages, res.Message)
		}
	}

	if runErr != nil {
		h.logger.Error("push handled with errors", "error", runErr, "repo", push.RepoURLs[0])
		resp.Error = runErr.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	h.logger.Info("push handled", "repo", push.RepoURLs[0], "branch", push.Branch, "mappings", len(mappings))
	writeJSON(w, http.StatusAccepted, resp)
}

var errUnknownSource = errors.New("source is not allowed for this forge")

// checkSource applies the source IPs of the first known forge among the
// push locations. Pushes from unknown forges pass.
func (h *WebhookHandler) checkSource(ctx context.Context, r *http.Request, locations []gitutil.RepoLocation) (int, error) {
	ip := netutil.ClientIPFrom(ctx)
	if ip == nil {
		ip = netutil.PeerIP(r)
	}

	for _, loc := range locations {
		svc, err := h.sources.ServiceForNetloc(ctx, loc.Netloc)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return http.StatusInternalServerError, err
		}
		if len(svc.IPs) == 0 {
			return 0, nil
		}
		allowed, err := netutil.ParseCIDRs(svc.IPs)
		if err != nil {
			return http.StatusInternalServerError, fmt.Errorf("vcs service %s: %w", svc, err)
		}
		if !netutil.Contains(allowed, ip) {
			return http.StatusForbidden, fmt.Errorf("%w: %s from %s", errUnknownSource, svc, ip)
		}
		return 0, nil
	}
	return 0, nil
}

// relayHook queues hook for every relay target of the push namespaces.
// Failures are logged and never fail the push.
func (h *WebhookHandler) relayHook(ctx context.Context, locations []gitutil.RepoLocation, hook *core.Hook) {
	if h.relay == nil {
		return
	}
	seen := make(map[int64]struct{})
	for _, loc := range locations {
		targets, err := h.sources.RelayTargets(ctx, loc.Netloc, loc.Namespace)
		if err != nil {
			h.logger.Error("failed to look up relay targets", "error", err, "netloc", loc.Netloc)
			continue
		}
		for _, t := range targets {
			if _, ok := seen[t.ID]; ok {
				continue
			}
			seen[t.ID] = struct{}{}
			if err := h.relay.Relay(ctx, t, hook); err != nil {
				h.logger.Warn("relay not queued", "target", t.Name, "error", err)
			}
		}
	}
}

// findMappings tries every candidate url and returns the first that has mappings.
func (h *WebhookHandler) findMappings(ctx context.Context, push *core.Push) ([]*core.WebhookMapping, error) {
	for _, u := range gitutil.CandidateURLs(push.RepoURLs...) {
		mappings, err := h.mappings.FindMappings(ctx, u, push.Branch)
		if err != nil {
			return nil, err
		}
		if len(mappings) > 0 {
			return mappings, nil
		}
	}
	return nil, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
