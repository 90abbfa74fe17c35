// Package types defines the value types shared across the episodic memory
// engine: episodes, steps, context, outcomes, rewards, reflections, and the
// pattern/heuristic vocabulary mined from them. All entities carry stable
// UUID identifiers (NewID). Timestamps are plain time.Time values as set by
// the engine or the caller; nothing here converts them to UTC or truncates
// them to millisecond precision.
package types

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh stable identifier for any entity in the engine.
func NewID() string {
	return uuid.New().String()
}

// Complexity classifies the difficulty of a task.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// TaskType enumerates the kinds of tasks an episode can record.
type TaskType string

const (
	TaskCodeGeneration TaskType = "code_generation"
	TaskDebugging      TaskType = "debugging"
	TaskTesting        TaskType = "testing"
	TaskAnalysis       TaskType = "analysis"
	TaskRefactoring    TaskType = "refactoring"
	TaskOther          TaskType = "other"
)

// TaskContext describes the environment a task executes in.
type TaskContext struct {
	Domain     string     `json:"domain"`
	Language   string     `json:"language,omitempty"`
	Framework  string     `json:"framework,omitempty"`
	Complexity Complexity `json:"complexity"`
	Tags       []string   `json:"tags,omitempty"`
}

// StepResultKind tags whether a step succeeded or errored.
type StepResultKind string

const (
	StepSuccess StepResultKind = "success"
	StepError   StepResultKind = "error"
)

// StepResult is a tagged union over a step's observed outcome.
type StepResult struct {
	Kind    StepResultKind `json:"kind"`
	Output  string         `json:"output,omitempty"`
	Message string         `json:"message,omitempty"`
}

// ExecutionStep is one tool invocation within an episode.
type ExecutionStep struct {
	StepNumber int                    `json:"step_number"`
	Tool       string                 `json:"tool"`
	Action     string                 `json:"action"`
	Parameters map[string]string      `json:"parameters,omitempty"`
	Result     *StepResult            `json:"result,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// OutcomeKind tags the terminal state of an episode.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomePartialSuccess OutcomeKind = "partial_success"
	OutcomeFailure        OutcomeKind = "failure"
)

// Outcome is a tagged union over how an episode ended.
type Outcome struct {
	Kind      OutcomeKind `json:"kind"`
	Verdict   string      `json:"verdict,omitempty"`
	Artifacts []string    `json:"artifacts,omitempty"`
	Completed []string    `json:"completed,omitempty"`
	Failed    []string    `json:"failed,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Details   string      `json:"details,omitempty"`
}

// IsSuccess reports whether the outcome counts as a full success.
func (o *Outcome) IsSuccess() bool {
	return o != nil && o.Kind == OutcomeSuccess
}

// IsFailure reports whether the outcome counts as a full failure.
func (o *Outcome) IsFailure() bool {
	return o == nil || o.Kind == OutcomeFailure
}

// RewardScore is the scalar quality assessment assigned to a completed episode.
type RewardScore struct {
	Total             float64 `json:"total"`
	Base              float64 `json:"base"`
	Efficiency        float64 `json:"efficiency"`
	ComplexityBonus   float64 `json:"complexity_bonus"`
	QualityMultiplier float64 `json:"quality_multiplier"`
	LearningBonus     float64 `json:"learning_bonus"`
}

// Reflection is a post-hoc synthesis of what went well, what to improve, and
// what was learned from an episode.
type Reflection struct {
	Successes    []string  `json:"successes"`
	Improvements []string  `json:"improvements"`
	Insights     []string  `json:"insights"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// SalientFeatures is the distilled set of critical decisions, tool
// combinations, recovery patterns, and insights extracted from an episode.
type SalientFeatures struct {
	CriticalDecisions     []string `json:"critical_decisions"`
	ToolCombinations       [][]string `json:"tool_combinations"`
	ErrorRecoveryPatterns []string `json:"error_recovery_patterns"`
	KeyInsights           []string `json:"key_insights"`
}

// Episode is the top-level record of one recorded attempt at a task.
type Episode struct {
	EpisodeID        string            `json:"episode_id"`
	TaskType         TaskType          `json:"task_type"`
	TaskDescription  string            `json:"task_description"`
	Context          TaskContext       `json:"context"`
	StartTime        time.Time         `json:"start_time"`
	EndTime          time.Time         `json:"end_time,omitempty"`
	Steps            []ExecutionStep   `json:"steps"`
	Outcome          *Outcome          `json:"outcome,omitempty"`
	Reward           *RewardScore      `json:"reward,omitempty"`
	Reflection       *Reflection       `json:"reflection,omitempty"`
	Patterns         []string          `json:"patterns,omitempty"`
	Heuristics       []string          `json:"heuristics,omitempty"`
	AppliedPatterns  []string          `json:"applied_patterns,omitempty"`
	SalientFeatures  *SalientFeatures  `json:"salient_features,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	Tags             []string          `json:"tags,omitempty"`
}

// IsComplete reports whether the episode has reached a terminal outcome.
func (e *Episode) IsComplete() bool {
	return e.Outcome != nil && !e.EndTime.IsZero()
}

// Clone returns a deep-enough copy of the episode for safe external handoff;
// the in-memory index holds episodes by UUID reference only, so every read
// path returns a snapshot rather than the live record.
func (e *Episode) Clone() *Episode {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Steps = append([]ExecutionStep(nil), e.Steps...)
	clone.Patterns = append([]string(nil), e.Patterns...)
	clone.Heuristics = append([]string(nil), e.Heuristics...)
	clone.AppliedPatterns = append([]string(nil), e.AppliedPatterns...)
	clone.Tags = append([]string(nil), e.Tags...)
	if e.Outcome != nil {
		o := *e.Outcome
		clone.Outcome = &o
	}
	if e.Reward != nil {
		r := *e.Reward
		clone.Reward = &r
	}
	if e.Reflection != nil {
		r := *e.Reflection
		clone.Reflection = &r
	}
	if e.SalientFeatures != nil {
		s := *e.SalientFeatures
		clone.SalientFeatures = &s
	}
	if e.Metadata != nil {
		clone.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// PatternKind tags the variant of a mined Pattern.
type PatternKind string

const (
	PatternToolSequence  PatternKind = "tool_sequence"
	PatternDecisionPoint PatternKind = "decision_point"
	PatternErrorRecovery PatternKind = "error_recovery"
	PatternContext       PatternKind = "context_pattern"
)

// OutcomeStats tallies observed outcomes for a DecisionPoint pattern.
type OutcomeStats struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// Pattern is a tagged-union generalisation mined from one or more episodes.
// Exactly the fields relevant to Kind are populated; consumers switch
// exhaustively on Kind rather than performing open-world dispatch.
type Pattern struct {
	PatternID string      `json:"pattern_id"`
	Kind      PatternKind `json:"kind"`
	Context   TaskContext `json:"context"`

	// ToolSequence fields
	Tools            []string `json:"tools,omitempty"`
	SuccessRate      float64  `json:"success_rate"`
	AvgLatency       time.Duration `json:"avg_latency,omitempty"`
	OccurrenceCount  int      `json:"occurrence_count"`
	Effectiveness    float64  `json:"effectiveness,omitempty"`

	// DecisionPoint fields
	Condition    string        `json:"condition,omitempty"`
	Action       string        `json:"action,omitempty"`
	OutcomeStats *OutcomeStats `json:"outcome_stats,omitempty"`

	// ErrorRecovery fields
	ErrorType     string   `json:"error_type,omitempty"`
	RecoverySteps []string `json:"recovery_steps,omitempty"`

	// ContextPattern fields
	ContextFeatures     []string `json:"context_features,omitempty"`
	RecommendedApproach string   `json:"recommended_approach,omitempty"`
	Evidence            []string `json:"evidence,omitempty"` // episode IDs, deduplicated

	// Relevance/confidence bookkeeping shared by clustering and ranking.
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AddEvidence appends an episode ID to Evidence, preserving set semantics.
func (p *Pattern) AddEvidence(episodeID string) {
	for _, id := range p.Evidence {
		if id == episodeID {
			return
		}
	}
	p.Evidence = append(p.Evidence, episodeID)
}

// EvidenceAggregate tracks how many times a heuristic's condition held.
type EvidenceAggregate struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
	SampleSize   int `json:"sample_size"`
}

// Heuristic is a learned condition -> action rule with tracked confidence.
type Heuristic struct {
	ID         string            `json:"id"`
	Condition  string            `json:"condition"`
	Action     string            `json:"action"`
	Confidence float64           `json:"confidence"`
	Evidence   EvidenceAggregate `json:"evidence"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// EpisodeSummary is a short textual distillation of a completed episode.
type EpisodeSummary struct {
	EpisodeID        string    `json:"episode_id"`
	SummaryText      string    `json:"summary_text"`
	KeyConcepts      []string  `json:"key_concepts"`
	KeySteps         []string  `json:"key_steps"`
	SummaryEmbedding []float32 `json:"summary_embedding,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// RelationshipType enumerates the typed edges callers may draw between
// episodes. Cycle detection and topological ordering are the caller's
// responsibility; this engine only stores and returns the edges.
type RelationshipType string

const (
	RelParentChild RelationshipType = "parent_child"
	RelDependsOn   RelationshipType = "depends_on"
	RelFollows     RelationshipType = "follows"
	RelRelatedTo   RelationshipType = "related_to"
	RelBlocks      RelationshipType = "blocks"
	RelDuplicates  RelationshipType = "duplicates"
	RelReferences  RelationshipType = "references"
)

// EpisodeRelationship is a typed edge between two episodes.
type EpisodeRelationship struct {
	RelationshipID string            `json:"relationship_id"`
	FromEpisodeID  string            `json:"from_episode_id"`
	ToEpisodeID    string            `json:"to_episode_id"`
	Type           RelationshipType  `json:"relationship_type"`
	Reason         string            `json:"reason,omitempty"`
	CreatedBy      string            `json:"created_by,omitempty"`
	Priority       *int              `json:"priority,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
