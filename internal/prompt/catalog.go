// Package prompt implements the Prompt Catalog component (spec §4.B):
// deterministic template selection by (stage, content-type, optimisation
// band, round), variable instantiation, and the content-type/band
// derivation rules. Generalized from the teacher's
// internal/parser/autoselector.go layered-selection-by-priority idiom
// (there: pick the best CSS selector candidate; here: pick the best prompt
// template candidate), with band/objective wording resolved against
// original_source/backend/app/services/prompt_manager.py.
package prompt

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/kaiven11/artical-generate/internal/store"
	"github.com/kaiven11/artical-generate/internal/types"
)

// Catalog selects and instantiates prompt templates on behalf of the
// translate/optimise/create stages and the detect-optimise loop.
type Catalog struct {
	store  store.Store
	logger *slog.Logger

	technicalKeywords []string
	tutorialKeywords  []string
	newsKeywords      []string
}

// DefaultTechnicalKeywords, DefaultTutorialKeywords, and DefaultNewsKeywords
// seed content-type classification exactly as §6.2 lists.
var (
	DefaultTechnicalKeywords = []string{
		"ai", "machine learning", "algorithm", "programming", "api",
		"database", "cloud", "docker", "kubernetes", "blockchain",
	}
	DefaultTutorialKeywords = []string{
		"how to", "tutorial", "guide", "step by step", "learn",
		"beginner", "getting started",
	}
	DefaultNewsKeywords = []string{
		"news", "breaking", "release", "update", "latest", "today", "yesterday",
	}
)

func New(s store.Store, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:             s,
		logger:            logger.With("component", "prompt_catalog"),
		technicalKeywords: DefaultTechnicalKeywords,
		tutorialKeywords:  DefaultTutorialKeywords,
		newsKeywords:      DefaultNewsKeywords,
	}
}

// Selection carries everything a caller needs to ask the Catalog for a
// prompt: which stage, what content looks like, and where the
// detect-optimise loop currently stands.
type Selection struct {
	Stage             types.PromptType
	ContentType       types.ContentType
	Band              types.Band
	Round             int
	OverridePromptID  *int64
	Variables         map[string]string
}

// Select implements the deterministic policy of §4.B: an explicit
// prompt_id wins outright; otherwise the highest-priority active template
// matching (stage, content_type) wins, ties broken by most recent creation;
// otherwise a hard-coded built-in default for the stage.
func (c *Catalog) Select(ctx context.Context, sel Selection) (string, *types.PromptTemplate, error) {
	if sel.OverridePromptID != nil {
		tmpl, err := c.store.GetTemplate(ctx, *sel.OverridePromptID)
		if err != nil {
			return "", nil, err
		}
		return c.instantiate(tmpl.Template, sel.Variables), tmpl, nil
	}

	candidates, err := c.store.SelectTemplates(ctx, sel.Stage, store.TemplateFilter{
		ContentType: sel.ContentType,
		ActiveOnly:  true,
	})
	if err != nil {
		return "", nil, err
	}
	if len(candidates) > 0 {
		best := highestPriority(candidates)
		return c.instantiate(best.Template, sel.Variables), best, nil
	}

	return c.instantiate(builtinDefault(sel.Stage, sel.Band), sel.Variables), nil, nil
}

// highestPriority mirrors SelectTemplates' own ordering (priority desc,
// then created_at desc) but is kept explicit here since a caller could
// supply candidates from elsewhere in the future.
func highestPriority(candidates []*types.PromptTemplate) *types.PromptTemplate {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	return candidates[0]
}

// DeriveBand implements §4.B's band derivation: light below 25, standard
// in [25,50], heavy above 50; round >= 2 always uses at least standard.
func DeriveBand(aiProbability float64, round int) types.Band {
	var band types.Band
	switch {
	case aiProbability > 50:
		band = types.BandHeavy
	case aiProbability >= 25:
		band = types.BandStandard
	default:
		band = types.BandLight
	}
	if round >= 2 && band == types.BandLight {
		return types.BandStandard
	}
	return band
}

// DeriveContentType implements §4.B/§6.2's keyword-count rule over the
// title plus the first 500 characters of content.
func (c *Catalog) DeriveContentType(title, content string) types.ContentType {
	window := content
	if len(window) > 500 {
		window = window[:500]
	}
	haystack := strings.ToLower(title + " " + window)

	techCount := countMatches(haystack, c.technicalKeywords)
	tutorialCount := countMatches(haystack, c.tutorialKeywords)
	newsCount := countMatches(haystack, c.newsKeywords)

	switch {
	case techCount >= 2:
		return types.ContentTechnical
	case tutorialCount >= 1:
		return types.ContentTutorial
	case newsCount >= 1:
		return types.ContentNews
	default:
		return types.ContentGeneral
	}
}

func countMatches(haystack string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			count++
		}
	}
	return count
}

// instantiate replaces every {name} token with the supplied value via a
// single left-to-right scan. Unknown placeholders are left verbatim and
// logged, per §4.B.
func (c *Catalog) instantiate(template string, variables map[string]string) string {
	var sb strings.Builder
	i := 0
	for i < len(template) {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			sb.WriteString(template[i:])
			break
		}
		open += i
		sb.WriteString(template[i:open])

		close := strings.IndexByte(template[open:], '}')
		if close < 0 {
			sb.WriteString(template[open:])
			break
		}
		close += open

		name := template[open+1 : close]
		if value, ok := variables[name]; ok {
			sb.WriteString(value)
		} else {
			c.logger.Warn("unknown prompt placeholder left unresolved", "placeholder", name)
			sb.WriteString(template[open : close+1])
		}
		i = close + 1
	}
	return sb.String()
}

// targetLengthWords supplies the {target_length} variable's substitution
// text from the fixed table of §4.B/§6.2.
func targetLengthWords(tl types.TargetLength) string {
	r, ok := types.TargetLengthRanges[tl]
	if !ok {
		r = types.TargetLengthRanges[types.TargetLengthMedium]
	}
	return strconv.Itoa(r.Min) + "-" + strconv.Itoa(r.Max)
}

// VariablesFor builds the standard variable map the loop and stages pass
// to Select, filling {target_length} from the fixed table automatically.
func VariablesFor(content string, targetLength types.TargetLength, extra map[string]string) map[string]string {
	vars := map[string]string{
		"content":       content,
		"target_length": targetLengthWords(targetLength),
	}
	for k, v := range extra {
		vars[k] = v
	}
	return vars
}
