package nodes

import (
	"context"
	"strings"
	"unicode"

	"github.com/knu-deptqa/server/internal/agent/graph/parsers"
	"github.com/knu-deptqa/server/internal/agent/graph/prompts"
	"github.com/knu-deptqa/server/internal/agent/model"
)

// hangulThreshold is the Hangul share at or above which text counts as Korean.
const hangulThreshold = 0.6

// DetectLanguage sets the response language of the turn. Empty input yields
// the default language without a model call; malformed classifier output
// falls back to the Hangul heuristic.
func DetectLanguage(d Deps) Node {
	defaultLanguage := model.ParseLanguage(d.Conversation.Language)
	return func(ctx context.Context, s model.TurnState) (model.Update, error) {
		text := strings.TrimSpace(s.Question)
		if text == "" {
			return model.Update{Language: defaultLanguage}, nil
		}

		log := nodeLogger(s, NodeDetectLanguage)
		var cost float64
		instructions, err := prompts.RenderLanguage(ctx)
		if err == nil {
			var c Completion
			c, err = d.Models.Classify(ctx, TaskLanguage, instructions, text)
			cost = c.CostUSD
			if err == nil {
				var lang model.Language
				if lang, err = parsers.ParseLanguage(c.Text); err == nil {
					log.Debug().Str("language", string(lang)).Msg("Language detected")
					return model.Update{Language: lang, CostUSD: cost}, nil
				}
			}
		}
		if ctx.Err() != nil {
			return model.Update{}, ctx.Err()
		}

		lang := HeuristicLanguage(text, defaultLanguage)
		log.Warn().Err(err).Str("language", string(lang)).Msg("Language classifier unusable - using Hangul heuristic")
		return model.Update{Language: lang, CostUSD: cost}, nil
	}
}

// HeuristicLanguage classifies text by its share of Hangul letters.
// Text without letters gets fallback.
func HeuristicLanguage(text string, fallback model.Language) model.Language {
	if strings.IndexFunc(text, unicode.IsLetter) < 0 {
		return fallback
	}
	if parsers.HangulShare(text) >= hangulThreshold {
		return model.Korean
	}
	return model.English
}
