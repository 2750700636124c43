package analyst

import (
	"context"
	"strings"

	"github.com/tfkr-ae/furlong/domain"
)

type cannedAnswer struct {
	keywords []string
	answer   string
}

var cannedAnswers = []cannedAnswer{
	{
		keywords: []string{"odds", "price", "bookie", "bookmaker"},
		answer: "Compare the win prices across bookmakers in the odds table before you bet. " +
			"A horse that is shortening everywhere is being backed, one that drifts at every " +
			"bookmaker is usually weak in the market.",
	},
	{
		keywords: []string{"track", "rating", "wet", "heavy", "soft"},
		answer: "Check the track rating on race morning. Horses with wins on Soft and Heavy " +
			"ratings deserve extra respect once the track goes above Good 4.",
	},
	{
		keywords: []string{"jockey", "rider"},
		answer: "Jockey bookings matter most in the big races. Look for a top rider " +
			"switching onto a horse, it often signals stable confidence.",
	},
	{
		keywords: []string{"trainer", "stable"},
		answer: "Trainer strike rates at the track and distance are a good filter. " +
			"Stables in form tend to keep winning for a few weeks.",
	},
	{
		keywords: []string{"form", "last start", "runs"},
		answer: "Read the form line from left to right, oldest to newest. An x marks a spell, " +
			"so a horse first or second up from a spell is worth a closer look.",
	},
	{
		keywords: []string{"barrier", "draw", "gate"},
		answer: "Inside barriers help on tight tracks and in short races. Wide draws cost " +
			"ground unless the horse has the speed to cross the field.",
	},
}

const defaultAnswer = "I look at form, track conditions, barriers, jockeys and market moves. " +
	"Ask me about a race, a horse or the odds and I'll break it down."

// CannedResponder answers from a fixed set of racing tips chosen by keyword.
type CannedResponder struct{}

// Respond returns the tip whose keywords match the question, or a general answer.
func (CannedResponder) Respond(ctx context.Context, question string, history []*domain.ChatMessage) (string, error) {
	question = strings.ToLower(question)
	for _, canned := range cannedAnswers {
		for _, keyword := range canned.keywords {
			if strings.Contains(question, keyword) {
				return canned.answer, nil
			}
		}
	}
	return defaultAnswer, nil
}
