package learning

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/triagecore/triagecore/pkg/models"
)

const minRecordsForAdjustment = 5

var empathyWords = []string{
	"sorry", "apologize", "apologies", "understand", "appreciate",
	"unfortunately", "glad", "happy",
}

var formalClosings = []string{
	"regards", "sincerely", "cordially", "respectfully",
}

// Engine turns human approval events into per-intent confidence bias and
// on-demand insight aggregates. All derived values are computed from the
// rolling history; nothing is persisted separately.
type Engine struct {
	store Store
	now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Record derives the edit diff for one human review and appends it to the
// history. The record is immutable after this call.
func (e *Engine) Record(ctx context.Context, rec *models.ApprovalRecord) error {
	if rec.ConversationID == "" {
		return fmt.Errorf("approval record missing conversation id")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = e.now()
	}

	rec.WasEdited = rec.ProposedText != rec.ApprovedText
	if rec.WasEdited {
		rec.Diff = diffTexts(rec.ProposedText, rec.ApprovedText)
	} else {
		rec.Diff = nil
	}

	if err := e.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("appending approval record: %w", err)
	}
	log.Debug().
		Str("conversation_id", rec.ConversationID).
		Str("intent", string(rec.Intent)).
		Bool("was_edited", rec.WasEdited).
		Msg("approval recorded")
	return nil
}

// AdjustConfidence biases a raw classification confidence by how often humans
// have been editing drafts for that intent. With fewer than five records for
// the intent the original confidence passes through unchanged.
func (e *Engine) AdjustConfidence(ctx context.Context, original float64, intent models.Intent) float64 {
	recs, err := e.store.ListByIntent(ctx, intent)
	if err != nil {
		log.Warn().Err(err).Str("intent", string(intent)).Msg("approval history unavailable, confidence unchanged")
		return original
	}
	if len(recs) < minRecordsForAdjustment {
		return original
	}

	edited := 0
	for _, r := range recs {
		if r.WasEdited {
			edited++
		}
	}
	rate := float64(edited) / float64(len(recs))

	switch {
	case rate > 0.5:
		return original * 0.8
	case rate < 0.2:
		adjusted := original * 1.1
		if adjusted > 1.0 {
			adjusted = 1.0
		}
		return adjusted
	default:
		return original
	}
}

// Insights is an on-demand aggregate over the rolling history.
type Insights struct {
	TotalRecords     int                     `json:"total_records"`
	ApprovalRate     float64                 `json:"approval_rate"`
	AvgEditsPerRec   float64                 `json:"avg_edits_per_record"`
	ToneShifts       map[models.ToneShift]int `json:"tone_shifts"`
	PreferredPhrases []string                `json:"preferred_phrases"`
	AvoidPhrases     []string                `json:"avoid_phrases"`
}

// Insights aggregates approval rate, edit volume, tone-shift frequency and
// recurring phrase preferences from the current history snapshot.
func (e *Engine) Insights(ctx context.Context) (*Insights, error) {
	recs, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing approval history: %w", err)
	}

	out := &Insights{
		TotalRecords: len(recs),
		ToneShifts:   make(map[models.ToneShift]int),
	}
	if len(recs) == 0 {
		return out, nil
	}

	unedited := 0
	totalEdits := 0
	added := make(map[string]int)
	removed := make(map[string]int)
	for _, r := range recs {
		if !r.WasEdited {
			unedited++
			continue
		}
		if r.Diff == nil {
			continue
		}
		totalEdits += len(r.Diff.AddedPhrases) + len(r.Diff.RemovedPhrases)
		out.ToneShifts[r.Diff.ToneShift]++
		for _, p := range r.Diff.AddedPhrases {
			added[p]++
		}
		for _, p := range r.Diff.RemovedPhrases {
			removed[p]++
		}
	}

	out.ApprovalRate = float64(unedited) / float64(len(recs))
	out.AvgEditsPerRec = float64(totalEdits) / float64(len(recs))
	out.PreferredPhrases = recurring(added, 3)
	out.AvoidPhrases = recurring(removed, 3)
	return out, nil
}

func recurring(counts map[string]int, threshold int) []string {
	out := make([]string, 0)
	for phrase, n := range counts {
		if n >= threshold {
			out = append(out, phrase)
		}
	}
	sort.Strings(out)
	return out
}

// diffTexts computes the word-set difference between the proposed and
// approved texts and classifies the tone shift. The first matching tone rule
// wins: empathy added, formality removed, shorter, longer, none.
func diffTexts(proposed, approved string) *models.EditDiff {
	propWords := wordSet(proposed)
	apprWords := wordSet(approved)

	var addedList, removedList []string
	for w := range apprWords {
		if !propWords[w] {
			addedList = append(addedList, w)
		}
	}
	for w := range propWords {
		if !apprWords[w] {
			removedList = append(removedList, w)
		}
	}
	sort.Strings(addedList)
	sort.Strings(removedList)

	dist := levenshtein(proposed, approved)
	return &models.EditDiff{
		AddedPhrases:   addedList,
		RemovedPhrases: removedList,
		ToneShift:      classifyTone(proposed, approved, addedList, removedList),
		Distance:       dist,
		Magnitude:      magnitude(dist, proposed, approved),
	}
}

func classifyTone(proposed, approved string, added, removed []string) models.ToneShift {
	if containsAny(added, empathyWords) {
		return models.ToneMoreEmpathetic
	}
	if containsAny(removed, formalClosings) {
		return models.ToneLessFormal
	}
	pl, al := len(proposed), len(approved)
	if pl > 0 {
		ratio := float64(al) / float64(pl)
		if ratio < 0.7 {
			return models.ToneMoreConcise
		}
		if ratio > 1.3 {
			return models.ToneMoreDetailed
		}
	}
	return models.ToneNone
}

func containsAny(haystack, needles []string) bool {
	for _, h := range haystack {
		for _, n := range needles {
			if h == n {
				return true
			}
		}
	}
	return false
}

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w != "" {
			out[w] = true
		}
	}
	return out
}

// magnitude buckets the edit distance relative to the longer text.
func magnitude(dist int, proposed, approved string) models.EditMagnitude {
	longest := len(proposed)
	if len(approved) > longest {
		longest = len(approved)
	}
	if longest == 0 {
		return models.EditMinor
	}
	ratio := float64(dist) / float64(longest)
	switch {
	case ratio < 0.1:
		return models.EditMinor
	case ratio < 0.3:
		return models.EditModerate
	case ratio < 0.6:
		return models.EditMajor
	default:
		return models.EditCompleteRewrite
	}
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
