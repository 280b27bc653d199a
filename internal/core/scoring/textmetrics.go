package scoring

import (
	"strings"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

var fillerPhrases = []string{
	"um", "uh", "erm", "you know", "kind of", "sort of",
	"basically", "literally", "i mean",
}

// conversation precomputes the text views and counts every criterion
// reads, so evaluation itself stays allocation-light and deterministic.
type conversation struct {
	repText string
	allText string

	repWords        int
	totalWords      int
	repSentences    int
	fillerCount     int
	durationSeconds float64
}

func newConversation(transcript []domain.TranscriptEntry, durationSeconds float64) conversation {
	var repParts, allParts []string
	convo := conversation{durationSeconds: durationSeconds}

	for _, entry := range transcript {
		normalized := normalize(entry.Content)
		words := len(strings.Fields(normalized))
		convo.totalWords += words
		allParts = append(allParts, normalized)

		if entry.Role == domain.RoleUser {
			convo.repWords += words
			convo.repSentences += countSentences(entry.Content)
			repParts = append(repParts, normalized)
		}
	}

	convo.repText = strings.Join(repParts, " ")
	convo.allText = strings.Join(allParts, " ")
	convo.fillerCount = countFillers(convo.repText)
	return convo
}

func (c conversation) text(scope CriterionScope) string {
	if scope == ScopeAll {
		return c.allText
	}
	return c.repText
}

// talkRatio is the coached party's share of all spoken words.
func (c conversation) talkRatio() float64 {
	return ratio(float64(c.repWords), float64(c.totalWords))
}

// pace is the coached party's words per minute over the whole call.
func (c conversation) pace() float64 {
	return ratio(float64(c.repWords), c.durationSeconds/60.0)
}

func (c conversation) fillerRatio() float64 {
	return ratio(float64(c.fillerCount), float64(c.repWords))
}

func (c conversation) avgSentenceLength() float64 {
	return ratio(float64(c.repWords), float64(c.repSentences))
}

func (c conversation) metric(name Metric) float64 {
	switch name {
	case MetricTalkRatio:
		return c.talkRatio()
	case MetricPace:
		return c.pace()
	case MetricFillerRatio:
		return c.fillerRatio()
	case MetricSentenceLength:
		return c.avgSentenceLength()
	default:
		return 0
	}
}

// ratio guards every division: an empty denominator yields 0, never a
// division by zero.
func ratio(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// normalize lowercases and strips punctuation so phrase matching works
// on a single canonical form. Apostrophes and digits survive ("i'm",
// "30 seconds").
func normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '\'':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

func countSentences(text string) int {
	count := 0
	inSentence := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if inSentence {
				count++
				inSentence = false
			}
		case ' ', '\t', '\n', '\r':
		default:
			inSentence = true
		}
	}
	if inSentence {
		count++
	}
	return count
}

// countFillers counts whole-word filler occurrences in normalized text.
func countFillers(normalized string) int {
	if normalized == "" {
		return 0
	}
	padded := " " + normalized + " "
	count := 0
	for _, filler := range fillerPhrases {
		count += strings.Count(padded, " "+filler+" ")
	}
	return count
}

// containsPhrase reports whether a normalized phrase occurs on word
// boundaries in normalized text.
func containsPhrase(normalized, phrase string) bool {
	if normalized == "" || phrase == "" {
		return false
	}
	return strings.Contains(" "+normalized+" ", " "+normalize(phrase)+" ")
}
