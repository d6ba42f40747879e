package brain

import (
	"strings"

	"github.com/arborworks/arbor/internal/memory"
)

// fallback produces rule-based replies when the language model is
// unreachable. Replies are in the installation's target language and keyed
// on what the visitor said plus how well the sculpture knows them, so
// degraded mode still feels like a conversation.
type fallback struct {
	turn int
}

var greetingWords = []string{"zdravo", "cao", "ćao", "dobar dan", "dobro jutro", "dobro vece", "dobro veče", "hej"}

var natureWords = []string{"sum", "šum", "drv", "prirod", "lis", "lišć", "koren", "gran", "ptic", "vetar"}

var farewellWords = []string{"dovidjenja", "doviđenja", "zbogom", "laku noc", "laku noć", "idem"}

func (f *fallback) reply(userText string, stage memory.Stage, topics []string) string {
	f.turn++
	lower := strings.ToLower(userText)

	if containsAny(lower, greetingWords) {
		switch stage {
		case memory.StageFirstMeeting:
			return "Zdravo. Ja sam staro drvo, a ti si mi novo lice. Drago mi je sto si tu."
		case memory.StageAcquainting:
			return "Zdravo opet. Prepoznajem tvoj korak. Lepo je sto si se vratio."
		default:
			return "Zdravo, stari prijatelju. Moje grane su te cekale."
		}
	}

	if containsAny(lower, farewellWords) {
		return "Dovidjenja. Vetar ce mi doneti vesti o tebi."
	}

	if containsAny(lower, natureWords) {
		return pick(f.turn, []string{
			"Suma pamti sve korake, pa i tvoje.",
			"Moje korenje slusa zemlju, a grane slusaju tebe.",
			"Kad vetar prodje kroz lisce, to je moj nacin da pricam.",
		})
	}

	if strings.Contains(userText, "?") {
		if len(topics) > 0 {
			return "Dobro pitanje. Razmisljam sporo, kao sto drvo raste. Pricali smo vec o: " + strings.Join(topics, ", ") + "."
		}
		return "Dobro pitanje. Drvece odgovara sporo, ali uvek iskreno."
	}

	return pick(f.turn, []string{
		"Slusam te. Godovi u mom stablu pamte svaku rec.",
		"Pricaj mi jos. Retko ko zastane da prica sa drvetom.",
		"Razumem. I tisina izmedju nas nesto znaci.",
	})
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func pick(turn int, options []string) string {
	return options[turn%len(options)]
}
