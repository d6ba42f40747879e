package memory

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TopicTable maps topic tags to the keywords that reveal them. Matching is
// case-insensitive substring; the first match per tag wins.
type TopicTable struct {
	tags     []string
	keywords map[string][]string
}

// DefaultTopicTable covers the themes visitors bring up in front of the
// sculpture. Keywords are in the installation's target language.
func DefaultTopicTable() *TopicTable {
	return newTopicTable(map[string][]string{
		"priroda":  {"priroda", "drvo", "drvec", "sum", "list", "lisce", "koren", "grana", "zemlja", "nature", "tree", "forest"},
		"muzika":   {"muzik", "pesma", "pevanje", "zvuk", "music", "song"},
		"osecanja": {"osecam", "osecanja", "tuga", "tuzan", "tuzna", "srecan", "srecna", "radost", "strah", "ljubav", "feel", "love"},
		"umetnost": {"umetnost", "umetnik", "slika", "skulptura", "galerija", "izlozba", "art"},
		"vreme":    {"vreme", "proslost", "buducnost", "godina", "godine", "secanje", "uspomena", "time", "memory"},
		"porodica": {"porodica", "majka", "otac", "brat", "sestra", "deca", "dete", "family"},
		"grad":     {"grad", "ulica", "beton", "zgrada", "saobracaj", "city"},
		"san":      {"san", "snovi", "sanjam", "spavanje", "dream"},
	})
}

// LoadTopicTable reads a tag -> keyword-list mapping from a YAML file.
func LoadTopicTable(path string) (*TopicTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic table: %w", err)
	}
	var m map[string][]string
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse topic table: %w", err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("topic table %s is empty", path)
	}
	return newTopicTable(m), nil
}

func newTopicTable(m map[string][]string) *TopicTable {
	t := &TopicTable{keywords: make(map[string][]string, len(m))}
	for tag, words := range m {
		tag = strings.TrimSpace(strings.ToLower(tag))
		if tag == "" {
			continue
		}
		lowered := make([]string, 0, len(words))
		for _, w := range words {
			w = strings.TrimSpace(strings.ToLower(w))
			if w != "" {
				lowered = append(lowered, w)
			}
		}
		if len(lowered) == 0 {
			continue
		}
		t.tags = append(t.tags, tag)
		t.keywords[tag] = lowered
	}
	// Deterministic scan order keeps extraction reproducible.
	sort.Strings(t.tags)
	return t
}

// Extract returns the tags whose keywords occur in text, at most once each.
func (t *TopicTable) Extract(text string) []string {
	lowered := strings.ToLower(text)
	var found []string
	for _, tag := range t.tags {
		for _, kw := range t.keywords[tag] {
			if strings.Contains(lowered, kw) {
				found = append(found, tag)
				break
			}
		}
	}
	return found
}

// DiscoverTopics unions tags extracted from text into the memory's topic
// set. Running it twice on the same text adds nothing the second time.
func (m *Memory) DiscoverTopics(table *TopicTable, text string) []string {
	if table == nil {
		return nil
	}
	var added []string
	for _, tag := range table.Extract(text) {
		if m.HasTopic(tag) {
			continue
		}
		m.Topics = append(m.Topics, tag)
		added = append(added, tag)
	}
	return added
}
