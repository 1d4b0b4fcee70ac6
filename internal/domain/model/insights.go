package model

import "time"

// Note is the slice of a saved note the AI views read.
type Note struct {
	ID          int64
	Summary     string
	KeyInsights []string
	Title       string
	URL         string
	Domain      string
	CreatedAt   time.Time
}

type DigestTheme struct {
	Title   string  `json:"title"`
	Summary string  `json:"summary"`
	NoteIDs []int64 `json:"note_ids"`
}

// WeeklyDigest groups a week of reading into themes.
type WeeklyDigest struct {
	Summary string        `json:"summary"`
	Themes  []DigestTheme `json:"themes"`
}

type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"` // person | org | topic | place
}

type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

type KnowledgeGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

type Recommendation struct {
	Title   string  `json:"title"`
	Reason  string  `json:"reason"`
	NoteIDs []int64 `json:"note_ids"`
}

type Recommendations struct {
	Recommendations []Recommendation `json:"recommendations"`
}

type Contradiction struct {
	ClaimA  string  `json:"claim_a"`
	ClaimB  string  `json:"claim_b"`
	NoteIDs []int64 `json:"note_ids"`
}

type Contradictions struct {
	Contradictions []Contradiction `json:"contradictions"`
}
