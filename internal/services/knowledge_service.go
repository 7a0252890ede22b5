// Package services – KnowledgeService
//
// Two-pass retrieval producing the KNOWLEDGE CONTEXT block of the system
// prompt. The title pass runs first because a literal title mention
// ("warranty policy") is a stronger signal than embedding similarity and
// must not be out-voted by semantically-close but wrong articles. The
// semantic pass is the fallback; when both miss, an explicit "no relevant
// knowledge" value is returned so downstream prompting always has a
// KNOWLEDGE CONTEXT section to anchor on.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/velora-ai/dealer-chat-backend/internal/repo"
	"github.com/velora-ai/dealer-chat-backend/internal/search"
)

// NoKnowledgeFound is the explicit context value used when neither pass
// yields chunks. Callers must not treat it the same as "skip RAG".
const NoKnowledgeFound = "No relevant knowledge found."

// KnowledgeService resolves a query into a knowledge context block.
type KnowledgeService struct {
	DB       *gorm.DB
	Embedder search.Embedder

	// Semantic pass knobs.
	TopN     int     // candidate pool pulled before re-ranking
	Keep     int     // chunks kept after re-ranking
	MinScore float64 // similarity floor
}

// Resolve runs the two retrieval passes for a tenant-scoped query. It
// returns the context block plus the matched article title (empty for the
// semantic pass and for misses), which the orchestrator records as the
// conversation's last discussed topic.
func (s *KnowledgeService) Resolve(ctx context.Context, tenantID string, subTenantID *string, query string) (string, string, error) {
	tr := otel.Tracer("services/KnowledgeService")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	// Pass 1: title match, first token that yields any in-scope article.
	for _, tok := range search.TitleTokens(query) {
		article, err := repo.FindArticleByTitleToken(ctx, s.DB, tenantID, subTenantID, tok)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return "", "", err
		}
		chunks, err := repo.ListArticleChunks(ctx, s.DB, article.ID)
		if err != nil {
			return "", "", err
		}
		if len(chunks) == 0 {
			continue
		}
		parts := make([]string, 0, len(chunks))
		for _, c := range chunks {
			parts = append(parts, c.Content)
		}
		span.SetAttributes(attribute.String("knowledge.pass", "title"))
		return strings.Join(parts, "\n\n"), article.Title, nil
	}

	// Pass 2: semantic fallback.
	block, err := s.semanticPass(ctx, tenantID, subTenantID, query)
	if err != nil {
		return "", "", err
	}
	if block != "" {
		span.SetAttributes(attribute.String("knowledge.pass", "semantic"))
		return block, "", nil
	}

	span.SetAttributes(attribute.String("knowledge.pass", "none"))
	return NoKnowledgeFound, "", nil
}

// semanticPass embeds the query and ranks every in-scope chunk by cosine
// similarity. An unconfigured or failing embedder degrades to a miss rather
// than failing the pipeline: retrieval is an aid, not a dependency.
func (s *KnowledgeService) semanticPass(ctx context.Context, tenantID string, subTenantID *string, query string) (string, error) {
	if s.Embedder == nil {
		return "", nil
	}
	qvec, err := s.Embedder.Embed(ctx, query)
	if err != nil || len(qvec) == 0 {
		return "", nil
	}

	chunks, err := repo.ListScopedChunks(ctx, s.DB, tenantID, subTenantID)
	if err != nil {
		return "", err
	}
	cands := make([]search.Candidate, 0, len(chunks))
	for _, c := range chunks {
		v := c.Vector()
		if v == nil {
			continue
		}
		cands = append(cands, search.Candidate{ID: c.ID, Text: c.Content, Vector: v})
	}

	topN := s.TopN
	if topN <= 0 {
		topN = 20
	}
	keep := s.Keep
	if keep <= 0 {
		keep = 8
	}
	ranked := search.RankBySimilarity(qvec, cands, s.MinScore, topN)
	if len(ranked) > keep {
		ranked = ranked[:keep]
	}
	if len(ranked) == 0 {
		return "", nil
	}

	parts := make([]string, 0, len(ranked))
	for _, r := range ranked {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "\n\n"), nil
}
