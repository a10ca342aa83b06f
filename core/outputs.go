package core

import "time"

// ResearchFinding is one advisor/program lead produced by the research agent.
type ResearchFinding struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
	Area        string `json:"area,omitempty"`
	Email       string `json:"email,omitempty"`
	Source      string `json:"source,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// GeneratedDocument is a drafted artifact (statement of purpose, email,
// CV section) produced by the document agent.
type GeneratedDocument struct {
	Type    string    `json:"type"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Created time.Time `json:"created"`
}

// TrackedApplication is one application record maintained by the tracking
// agent.
type TrackedApplication struct {
	University string    `json:"university"`
	Program    string    `json:"program"`
	Deadline   string    `json:"deadline,omitempty"`
	Stage      string    `json:"stage"`
	Notes      string    `json:"notes,omitempty"`
	Updated    time.Time `json:"updated"`
}

// Milestone is one step of a study plan.
type Milestone struct {
	Title string `json:"title"`
	Due   string `json:"due,omitempty"`
	Done  bool   `json:"done"`
}

// StudyPlan is the planning agent's structured output.
type StudyPlan struct {
	Goal       string      `json:"goal"`
	Milestones []Milestone `json:"milestones"`
	Created    time.Time   `json:"created"`
}
