package sentiment

import (
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
)

var lexicon = govader.NewSentimentIntensityAnalyzer()

var (
	linkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern  = regexp.MustCompile(`https?://\S+|www\.\S+`)
	tagPattern  = regexp.MustCompile(`<[^>]+>`)
)

func RemoveLinks(input string) string {
	input = linkPattern.ReplaceAllString(input, "$1") // Keep only the text
	input = urlPattern.ReplaceAllString(input, "")

	return input
}

// CleanText renders markdown to plain text, drops links and tags, and
// collapses whitespace. Feedback arrives markdown-flavored often enough
// that scoring raw text skews both the lexicon and the model.
func CleanText(input string) string {
	output := blackfriday.Run([]byte(input), blackfriday.WithNoExtensions())
	stripped := tagPattern.ReplaceAllString(string(output), " ")
	stripped = RemoveLinks(stripped)

	return strings.Join(strings.Fields(stripped), " ")
}

// LexiconScore runs the local VADER pass over already-cleaned text and
// returns the compound polarity in [-1, 1].
func LexiconScore(text string) float64 {
	return lexicon.PolarityScores(text).Compound
}
