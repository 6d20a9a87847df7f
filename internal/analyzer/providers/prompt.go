package providers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// systemPrompt frames the chat models as the same 1-5 star classifier the
// HuggingFace model implements.
const systemPrompt = "You are a sentiment classifier for financial news headlines and social media comments. " +
	"Rate the sentiment of the user's text on a scale of 1 to 5, where 1 is very negative, " +
	"2 is negative, 3 is neutral, 4 is positive and 5 is very positive. " +
	"Respond with ONLY the single digit. No words, no punctuation."

// buildPrompt wraps text for providers that take a single user turn
func buildPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("Text to classify:\n")
	sb.WriteString(text)
	sb.WriteString("\n\nSentiment (1-5):")
	return sb.String()
}

var labelRe = regexp.MustCompile(`[1-5]`)

// ParseLabel extracts the first 1-5 digit from a model reply such as "4",
// "4 stars" or "Sentiment: 4".
func ParseLabel(reply string) (int, error) {
	m := labelRe.FindString(reply)
	if m == "" {
		return 0, fmt.Errorf("no sentiment label in reply: %.100q", reply)
	}
	return strconv.Atoi(m)
}
