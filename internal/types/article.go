package types

import (
	"fmt"
	"time"
)

// CreationType identifies how an Article's content originates.
type CreationType string

const (
	CreationURLImport     CreationType = "url_import"
	CreationTopicCreation CreationType = "topic_creation"
)

// TopicCreationPlatform is the reserved source_platform value for
// articles that originate from a topic prompt rather than a scraped URL.
const TopicCreationPlatform = "topic_creation"

// Status is the Article lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusExtracting  Status = "extracting"
	StatusCreating    Status = "creating"
	StatusTranslating Status = "translating"
	StatusOptimising  Status = "optimising"
	StatusDetecting   Status = "detecting"
	StatusReady       Status = "ready"
	StatusFailed      Status = "failed"
)

// validTransitions enumerates the allowed Status -> Status moves of spec §3.
// Publishing is orthogonal (sets PublishedAt without changing Status) so it
// is not part of this machine.
var validTransitions = map[Status]map[Status]bool{
	StatusPending:     {StatusExtracting: true, StatusCreating: true, StatusOptimising: true}, // optimising: retry re-running only that step
	StatusExtracting:  {StatusTranslating: true, StatusFailed: true},
	StatusTranslating: {StatusOptimising: true, StatusFailed: true},
	StatusCreating:    {StatusOptimising: true, StatusDetecting: true, StatusReady: true, StatusFailed: true},
	StatusOptimising:  {StatusDetecting: true, StatusReady: true, StatusFailed: true, StatusOptimising: true},
	StatusDetecting:   {StatusOptimising: true, StatusReady: true, StatusFailed: true, StatusDetecting: true},
	StatusReady:       {StatusPending: true}, // explicit retry resets to pending
	StatusFailed:      {StatusPending: true}, // explicit retry resets to pending
}

// CanTransition reports whether moving from one Status to another is legal.
// The identity transition (no-op update) is always legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	return validTransitions[from][to]
}

// TargetLength is the requested output length band (§3, §6.2).
type TargetLength string

const (
	TargetLengthMini   TargetLength = "mini"
	TargetLengthShort  TargetLength = "short"
	TargetLengthMedium TargetLength = "medium"
	TargetLengthLong   TargetLength = "long"
)

// TargetLengthRange is the inclusive character-count range for a TargetLength,
// expressed in Chinese characters per §4.B/§6.2.
type TargetLengthRange struct {
	Min, Max int
}

// TargetLengthRanges is the fixed table of §4.B/§6.2.
var TargetLengthRanges = map[TargetLength]TargetLengthRange{
	TargetLengthMini:   {300, 500},
	TargetLengthShort:  {500, 800},
	TargetLengthMedium: {800, 1500},
	TargetLengthLong:   {1500, 3000},
}

// Article is the central record of spec §3.
type Article struct {
	ID int64

	// SourceKey is either the source URL (url_import) or a synthetic
	// "topic://<topic>#<timestamp-ms>" string (topic_creation). It is
	// globally unique across all Articles.
	SourceKey string

	Title           string
	SourcePlatform  string
	CreationType    CreationType
	SourceURL       string
	Topic           string

	ContentOriginal  string
	ContentTranslated string
	ContentOptimised string
	ContentFinal     string

	Status Status

	Category           string
	TargetLength       TargetLength
	WritingStyle       string
	Keywords           []string
	CreationRequirements string

	SelectedPromptID *int64
	SelectedModelID  *int64

	AIProbability *float64

	ProcessingAttempts int
	LastError          string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
}

// NewURLImportArticle builds an Article seeded for the URL-import path.
func NewURLImportArticle(sourceURL string) *Article {
	now := time.Now()
	return &Article{
		SourceKey:    sourceURL,
		SourceURL:    sourceURL,
		CreationType: CreationURLImport,
		Status:       StatusPending,
		TargetLength: TargetLengthMedium,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTopicCreationArticle builds an Article seeded for the topic-creation
// path. The synthetic source_key embeds a millisecond timestamp so that
// repeated creations from the same topic never collide (§3).
func NewTopicCreationArticle(topic string, now time.Time) *Article {
	return &Article{
		SourceKey:      fmt.Sprintf("topic://%s#%d", topic, now.UnixMilli()),
		Topic:          topic,
		SourcePlatform: TopicCreationPlatform,
		CreationType:   CreationTopicCreation,
		Status:         StatusPending,
		TargetLength:   TargetLengthMedium,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// BestContent returns the best available candidate per the preference order
// of §4.G: optimised -> translated -> original.
func (a *Article) BestContent() string {
	switch {
	case a.ContentOptimised != "":
		return a.ContentOptimised
	case a.ContentTranslated != "":
		return a.ContentTranslated
	default:
		return a.ContentOriginal
	}
}

// Validate checks the invariants of spec §3 that can be checked without a
// Store (the unique-source_key invariant is Store's responsibility).
func (a *Article) Validate() error {
	switch a.CreationType {
	case CreationURLImport:
		if a.SourceURL == "" || a.Topic != "" {
			return &ValidationError{Field: "creation_type", Reason: "url_import articles must have source_url and no topic"}
		}
	case CreationTopicCreation:
		if a.Topic == "" || a.SourceURL != "" {
			return &ValidationError{Field: "creation_type", Reason: "topic_creation articles must have topic and no source_url"}
		}
	default:
		return &ValidationError{Field: "creation_type", Reason: "unknown creation_type"}
	}

	if a.Status == StatusReady || a.Status == StatusDetecting {
		if a.ContentOptimised == "" && a.ContentTranslated == "" && a.ContentOriginal == "" {
			return &ValidationError{Field: "status", Reason: "ready/detecting article must have non-empty content"}
		}
	}
	return nil
}
