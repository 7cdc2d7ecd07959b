package processor

import "fmt"

// TabRecord is one open tab as reported by the browser. Text may be empty.
type TabRecord struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
	Text  string `json:"text,omitempty" yaml:"text,omitempty"`
}

type AnalyzedTab struct {
	Title      string     `json:"title" yaml:"title"`
	URL        string     `json:"url" yaml:"url"`
	Category   Category   `json:"category" yaml:"category"`
	Importance Importance `json:"importance" yaml:"importance"`
	WordCount  int        `json:"word_count" yaml:"word_count"`
	Topic      string     `json:"topic" yaml:"topic"`
	Summary    string     `json:"summary,omitempty" yaml:"summary,omitempty"`
}

type CategoryCount struct {
	Category Category `json:"category" yaml:"category"`
	Count    int      `json:"count" yaml:"count"`
}

type AnalysisResult struct {
	TabCount   int             `json:"tab_count" yaml:"tab_count"`
	ByCategory []CategoryCount `json:"by_category" yaml:"by_category"`
	Tabs       []AnalyzedTab   `json:"tabs" yaml:"tabs"`
}

type Category int

const (
	CategoryOther Category = iota
	CategorySocial
	CategoryVideo
	CategoryEmail
	CategoryDocs
	CategoryDev
)

var categoryNames = map[Category]string{
	CategoryOther:  "other",
	CategorySocial: "social",
	CategoryVideo:  "video",
	CategoryEmail:  "email",
	CategoryDocs:   "docs/notes",
	CategoryDev:    "dev",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

func (c Category) MarshalText() ([]byte, error) {
	name, ok := categoryNames[c]
	if !ok {
		return nil, fmt.Errorf("unknown category %d", int(c))
	}
	return []byte(name), nil
}

func (c *Category) UnmarshalText(text []byte) error {
	for cat, name := range categoryNames {
		if name == string(text) {
			*c = cat
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", text)
}

type Importance int

const (
	ImportanceCloseCandidate Importance = iota
	ImportanceSaveForLater
	ImportanceReadNow
)

var importanceNames = map[Importance]string{
	ImportanceCloseCandidate: "close_candidate",
	ImportanceSaveForLater:   "save_for_later",
	ImportanceReadNow:        "read_now",
}

func (i Importance) String() string {
	if name, ok := importanceNames[i]; ok {
		return name
	}
	return fmt.Sprintf("Importance(%d)", int(i))
}

func (i Importance) MarshalText() ([]byte, error) {
	name, ok := importanceNames[i]
	if !ok {
		return nil, fmt.Errorf("unknown importance %d", int(i))
	}
	return []byte(name), nil
}

func (i *Importance) UnmarshalText(text []byte) error {
	for imp, name := range importanceNames {
		if name == string(text) {
			*i = imp
			return nil
		}
	}
	return fmt.Errorf("unknown importance %q", text)
}
