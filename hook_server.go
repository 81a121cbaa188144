package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/breez/txsync/catalog"
	"github.com/breez/txsync/globalize"
	"github.com/breez/txsync/middleware"
	"github.com/breez/txsync/telemetry"
	"github.com/breez/txsync/transifex"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxHookBodyBytes = 1 << 20

type Resolver interface {
	Secret(project string) (string, error)
	Resolve(ctx context.Context, project, resource string) (*catalog.Target, error)
}

type ContentSource interface {
	Download(ctx context.Context, resource transifex.Resource, language string) ([]byte, error)
}

type ContentWriter interface {
	WriteContent(ctx context.Context, req globalize.WriteRequest) (globalize.Result, error)
}

// HookServer handles Transifex webhook notifications: it authenticates the
// request, downloads the translation it announces and writes it to the
// tables the resource maps to.
type HookServer struct {
	resolver Resolver
	source   ContentSource
	writer   ContentWriter
	auth     *middleware.Authenticator
	metrics  *telemetry.Metrics
}

func NewHookServer(resolver Resolver, source ContentSource, writer ContentWriter, auth *middleware.Authenticator, metrics *telemetry.Metrics) *HookServer {
	return &HookServer{
		resolver: resolver,
		source:   source,
		writer:   writer,
		auth:     auth,
		metrics:  metrics,
	}
}

type errorReply struct {
	Error string `json:"error"`
}

func (s *HookServer) HandleTransifexHook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		s.metrics.HookDuration.Observe(time.Since(start).Seconds())
	}()

	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	form, err := s.authenticate(r)
	if err != nil {
		logger.Warn().Err(err).Msg("rejected webhook")
		s.metrics.HookRequests.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	project, resource, language := form.Get("project"), form.Get("resource"), form.Get("language")
	if err := s.process(ctx, project, resource, language); err != nil {
		logger.Error().Err(err).
			Str("project", project).
			Str("resource", resource).
			Str("language", language).
			Msg("failed to process webhook")
		s.metrics.HookRequests.WithLabelValues("failed").Inc()
		writeError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
		return
	}

	s.metrics.HookRequests.WithLabelValues("succeeded").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("{}"))
}

func (s *HookServer) authenticate(r *http.Request) (url.Values, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxHookBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse body: %w", err)
	}
	secret, err := s.resolver.Secret(form.Get("project"))
	if err != nil {
		return nil, err
	}
	err = s.auth.Verify(middleware.VerifyRequest{
		HTTPVerb:  r.Method,
		URL:       middleware.RequestURL(r),
		Date:      r.Header.Get(middleware.DateHeader),
		Content:   body,
		Signature: r.Header.Get(middleware.SignatureHeader),
		Secret:    secret,
	})
	if err != nil {
		return nil, err
	}
	return form, nil
}

func (s *HookServer) process(ctx context.Context, project, resource, language string) error {
	if language == "" {
		return errors.New("language is required")
	}
	target, err := s.resolver.Resolve(ctx, project, resource)
	if err != nil {
		return err
	}
	logger := zerolog.Ctx(ctx).With().
		Str("database", target.Database.Name).
		Str("resource", resource).
		Str("language", language).
		Logger()
	if language == target.Database.SourceLocale {
		logger.Info().Msg("skipping source locale")
		return nil
	}

	content, err := s.source.Download(ctx, target.Resource, language)
	if err != nil {
		return err
	}
	payload, err := globalize.DecodePayload(content)
	if err != nil {
		return err
	}

	for _, name := range payload.Tables() {
		table, cfg, err := target.OpenTable(ctx, name)
		if err != nil {
			return err
		}
		result, err := s.writer.WriteContent(ctx, globalize.WriteRequest{
			ProjectSlug:  target.Resource.ProjectSlug,
			ResourceSlug: target.Resource.ResourceSlug,
			Locale:       language,
			Table:        table,
			Columns:      cfg.Columns(),
			Entries:      payload[name],
		})
		s.metrics.RowsWritten.WithLabelValues(name, "insert").Add(float64(result.Inserted))
		s.metrics.RowsWritten.WithLabelValues(name, "update").Add(float64(result.Updated))
		if err != nil {
			return err
		}
		logger.Info().
			Str("table", name).
			Int("inserted", result.Inserted).
			Int("updated", result.Updated).
			Msg("translations written")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode([]errorReply{{Error: message}}); err != nil {
		log.Error().Err(err).Msg("failed to encode error response")
	}
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
