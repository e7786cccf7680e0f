package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog/log"
	"github.com/vasilisp/searchai/internal/data"
	"github.com/vasilisp/searchai/internal/metrics"
	"github.com/vasilisp/searchai/internal/util"
	"github.com/vasilisp/searchai/pkg/api"
	"golang.org/x/sync/errgroup"
)

// NotFound is the domain lookup answer when the model is not confident.
const NotFound = "Not found"

const summarySchemaName = "summary_card"

var ErrEmptyQuery = errors.New("empty query")

// Generator issues one-shot model requests.
type Generator interface {
	AskGPT(ctx context.Context, systemMessage string, userMessage string) (string, error)
	AskJSON(ctx context.Context, systemMessage string, userMessage string, schemaName string, schema any) (string, error)
}

// Outcome aggregates the three generations for a query. Failed parts carry
// a readable error text in place of the result.
type Outcome struct {
	Query      string
	Results    string
	SummaryRaw string
	Summary    *api.Summary // nil unless SummaryRaw parsed and validated
	Domain     string
}

func (o *Outcome) DomainFound() bool {
	return o.Domain != NotFound
}

func (o *Outcome) Response() api.SearchResponse {
	return api.SearchResponse{
		Query:      o.Query,
		Results:    o.Results,
		SummaryRaw: o.SummaryRaw,
		Summary:    o.Summary,
		Domain:     o.Domain,
	}
}

type Handler struct {
	gen     Generator
	schema  *jsonschema.Schema
	domains *domainCache
}

func summarySchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(&api.Summary{})
}

// NewHandler builds a fan-out handler. domainCacheSize bounds the number of
// remembered domain answers; zero or less disables the cache.
func NewHandler(gen Generator, domainCacheSize int) *Handler {
	util.Assert(gen != nil, "NewHandler nil generator")

	return &Handler{
		gen:     gen,
		schema:  summarySchema(),
		domains: newDomainCache(domainCacheSize),
	}
}

// Handle runs the three generations for query concurrently. It fails only
// for an empty query; every upstream failure is folded into the outcome.
func (h *Handler) Handle(ctx context.Context, query string) (*Outcome, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	outcome := &Outcome{Query: query}

	// each task writes its own fields and never returns an error, so one
	// failure cannot cancel or delay the others
	var g errgroup.Group
	g.Go(func() error {
		outcome.Results = h.results(ctx, query)
		return nil
	})
	g.Go(func() error {
		outcome.SummaryRaw, outcome.Summary = h.summary(ctx, query)
		return nil
	})
	g.Go(func() error {
		outcome.Domain = h.domain(ctx, query)
		return nil
	})
	_ = g.Wait()

	return outcome, nil
}

func (h *Handler) results(ctx context.Context, query string) string {
	text, err := h.gen.AskGPT(ctx, data.SystemPromptListing, query)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("listing", "error").Inc()
		log.Warn().Err(err).Str("component", "search").Str("query", query).Msg("listing generation failed")
		return fmt.Sprintf("Upstream API error: %v", err)
	}

	metrics.UpstreamCalls.WithLabelValues("listing", "ok").Inc()
	return text
}

func (h *Handler) summary(ctx context.Context, query string) (string, *api.Summary) {
	raw, err := h.gen.AskJSON(ctx, data.SystemPromptSummary, query, summarySchemaName, h.schema)
	if err == nil {
		var summary *api.Summary
		if summary, err = ParseSummary(raw); err == nil {
			metrics.UpstreamCalls.WithLabelValues("summary", "ok").Inc()
			return raw, summary
		}
	}

	metrics.UpstreamCalls.WithLabelValues("summary", "error").Inc()
	log.Warn().Err(err).Str("component", "search").Str("query", query).Msg("summary generation failed")
	return fmt.Sprintf("Upstream API error. Could not obtain a JSON response. Details: %v", err), nil
}

func (h *Handler) domain(ctx context.Context, query string) string {
	key := util.NormalizeKey(query)
	if domain, ok := h.domains.get(key); ok {
		return domain
	}

	text, err := h.gen.AskGPT(ctx, data.SystemPromptDomain, query)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues("domain", "error").Inc()
		log.Warn().Err(err).Str("component", "search").Str("query", query).Msg("domain lookup failed")
		return NotFound
	}
	metrics.UpstreamCalls.WithLabelValues("domain", "ok").Inc()

	domain := util.TrimAnswer(text)
	if domain == "" || strings.EqualFold(domain, NotFound) {
		return NotFound
	}

	h.domains.add(key, domain)
	return domain
}

type rawSummary struct {
	Summary          *string   `json:"summary"`
	Facts            *[]string `json:"facts"`
	SourceConfidence *string   `json:"source_confidence"`
}

// ParseSummary decodes a structured summary and checks that every required
// field is present. The number of facts and the confidence label are not
// checked.
func ParseSummary(raw string) (*api.Summary, error) {
	var parsed rawSummary
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("invalid summary JSON: %w", err)
	}

	var missing []string
	if parsed.Summary == nil {
		missing = append(missing, "summary")
	}
	if parsed.Facts == nil {
		missing = append(missing, "facts")
	}
	if parsed.SourceConfidence == nil {
		missing = append(missing, "source_confidence")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("summary missing required fields: %s", strings.Join(missing, ", "))
	}

	return &api.Summary{
		Summary:          *parsed.Summary,
		Facts:            *parsed.Facts,
		SourceConfidence: *parsed.SourceConfidence,
	}, nil
}
