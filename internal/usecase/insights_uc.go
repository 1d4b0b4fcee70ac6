package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/domain/ports/adapter"
	"notes-ai-jobs/internal/domain/ports/repository"
	"notes-ai-jobs/internal/domain/ports/usecase"
	"notes-ai-jobs/internal/infra/logging"
)

const (
	maxNotesPerPrompt = 50
	digestWindow      = 7 * 24 * time.Hour
)

// InsightsUseCase builds the four heavy views from a user's notes.
type InsightsUseCase struct {
	notes         repository.NoteRepository
	llm           adapter.StructuredGenerator
	countTokens   TokenCounter
	contextTokens int
	now           func() time.Time
	log           *zerolog.Logger
}

func NewInsightsUseCase(notes repository.NoteRepository, llm adapter.StructuredGenerator, counter TokenCounter, contextTokens int, logger *zerolog.Logger) *InsightsUseCase {
	return &InsightsUseCase{
		notes:         notes,
		llm:           llm,
		countTokens:   counter,
		contextTokens: contextTokens,
		now:           time.Now,
		log:           logging.Component(logger, "insights_uc"),
	}
}

// RegisterHandlers binds every view to its job type.
func (u *InsightsUseCase) RegisterHandlers(r *Registry) {
	r.Register(model.JobTypeDigest, usecase.JobHandlerFunc(u.WeeklyDigest))
	r.Register(model.JobTypeGraph, usecase.JobHandlerFunc(u.KnowledgeGraph))
	r.Register(model.JobTypeRecommendations, usecase.JobHandlerFunc(u.Recommendations))
	r.Register(model.JobTypeContradictions, usecase.JobHandlerFunc(u.Contradictions))
}

func (u *InsightsUseCase) WeeklyDigest(ctx context.Context, userID int64, _ string) (json.RawMessage, error) {
	defer logging.TraceDuration(u.log, "InsightsUC.WeeklyDigest")()

	notes, err := u.notes.RecentNotes(ctx, userID, u.now().Add(-digestWindow), maxNotesPerPrompt)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	if len(notes) == 0 {
		return json.Marshal(model.WeeklyDigest{Summary: "No notes found for this week.", Themes: []model.DigestTheme{}})
	}

	prompt := `You are summarizing a user's week of reading into themes.
Return STRICT JSON with this shape:
{
  "summary": string,
  "themes": {
    "title": string,
    "summary": string,
    "note_ids": number[]
  }[]
}
Rules:
- 3 to 6 themes.
- Each theme must reference relevant note_ids.

Notes:
` + u.noteContext(notes)

	var out model.WeeklyDigest
	if err := u.generate(ctx, prompt, &out); err != nil {
		return nil, err
	}
	if out.Themes == nil {
		out.Themes = []model.DigestTheme{}
	}
	return json.Marshal(out)
}

func (u *InsightsUseCase) KnowledgeGraph(ctx context.Context, userID int64, _ string) (json.RawMessage, error) {
	defer logging.TraceDuration(u.log, "InsightsUC.KnowledgeGraph")()

	notes, err := u.notes.RecentNotes(ctx, userID, time.Time{}, maxNotesPerPrompt)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	empty := model.KnowledgeGraph{Nodes: []model.GraphNode{}, Edges: []model.GraphEdge{}}
	if len(notes) == 0 {
		return json.Marshal(empty)
	}

	prompt := `You are building a knowledge graph from reading notes.
Return STRICT JSON with this shape:
{
  "nodes": { "id": string, "label": string, "type": "person"|"org"|"topic"|"place" }[],
  "edges": { "source": string, "target": string, "label": string }[]
}
Rules:
- Max 100 nodes.
- Use consistent IDs for the same entity.
- Edges should represent meaningful relationships.

Notes:
` + u.noteContext(notes)

	var out model.KnowledgeGraph
	if err := u.generate(ctx, prompt, &out); err != nil {
		return nil, err
	}
	if out.Nodes == nil {
		out.Nodes = empty.Nodes
	}
	if out.Edges == nil {
		out.Edges = empty.Edges
	}
	return json.Marshal(out)
}

func (u *InsightsUseCase) Recommendations(ctx context.Context, userID int64, _ string) (json.RawMessage, error) {
	defer logging.TraceDuration(u.log, "InsightsUC.Recommendations")()

	notes, err := u.notes.RecentNotes(ctx, userID, time.Time{}, maxNotesPerPrompt)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	if len(notes) == 0 {
		return json.Marshal(model.Recommendations{Recommendations: []model.Recommendation{}})
	}

	prompt := `You recommend what the user should read or revisit next based only on their notes.
Return STRICT JSON with this shape:
{
  "recommendations": {
    "title": string,
    "reason": string,
    "note_ids": number[]
  }[]
}
Rules:
- 5 to 7 recommendations.
- Use note_ids to justify each recommendation.

Notes:
` + u.noteContext(notes)

	var out model.Recommendations
	if err := u.generate(ctx, prompt, &out); err != nil {
		return nil, err
	}
	if out.Recommendations == nil {
		out.Recommendations = []model.Recommendation{}
	}
	return json.Marshal(out)
}

func (u *InsightsUseCase) Contradictions(ctx context.Context, userID int64, _ string) (json.RawMessage, error) {
	defer logging.TraceDuration(u.log, "InsightsUC.Contradictions")()

	notes, err := u.notes.RecentNotes(ctx, userID, time.Time{}, maxNotesPerPrompt)
	if err != nil {
		return nil, fmt.Errorf("load notes: %w", err)
	}
	if len(notes) == 0 {
		return json.Marshal(model.Contradictions{Contradictions: []model.Contradiction{}})
	}

	prompt := `You identify conflicting or contradictory claims across notes.
Return STRICT JSON with this shape:
{
  "contradictions": {
    "claim_a": string,
    "claim_b": string,
    "note_ids": number[]
  }[]
}
Rules:
- Only list real contradictions.
- If none, return an empty list.

Notes:
` + u.noteContext(notes)

	var out model.Contradictions
	if err := u.generate(ctx, prompt, &out); err != nil {
		return nil, err
	}
	if out.Contradictions == nil {
		out.Contradictions = []model.Contradiction{}
	}
	return json.Marshal(out)
}

// generate calls the model and decodes its answer into out.
func (u *InsightsUseCase) generate(ctx context.Context, prompt string, out any) error {
	raw, err := u.llm.GenerateStructured(ctx, prompt)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		u.log.Warn().Err(err).Int("raw_len", len(raw)).Msg("structured answer does not match the expected shape")
		return domain.ErrInvalidLLMJSON
	}
	return nil
}

// noteContext renders notes newest first, dropping the oldest ones that do
// not fit the token budget.
func (u *InsightsUseCase) noteContext(notes []model.Note) string {
	blocks := make([]string, 0, len(notes))
	for _, n := range notes {
		title := n.Title
		if title == "" {
			title = "Untitled"
		}
		blocks = append(blocks, fmt.Sprintf("Note %d | %s | %s\nSummary: %s\nKey insights: %s",
			n.ID, title, n.URL, n.Summary, strings.Join(n.KeyInsights, "; ")))
	}
	kept := trimToBudget(blocks, u.contextTokens, u.countTokens)
	if len(kept) < len(blocks) {
		u.log.Debug().Int("notes", len(blocks)).Int("kept", len(kept)).Msg("trimmed note context to token budget")
	}
	return strings.Join(kept, "\n\n")
}
