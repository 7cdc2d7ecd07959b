package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/wgomg/tably/internal/processor"
	"github.com/wgomg/tably/internal/utils"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatText = "text"
)

const titleWidth = 48

var (
	accent = lipgloss.Color("#FFB3BA")
	muted  = lipgloss.Color("#6B7280")
	green  = lipgloss.Color("#A8E6CF")
	amber  = lipgloss.Color("#FFD580")

	headerStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	topicStyle   = lipgloss.NewStyle().Foreground(accent).Bold(true).MarginTop(1)
	titleStyle   = lipgloss.NewStyle().Width(titleWidth)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	summaryStyle = lipgloss.NewStyle().Foreground(muted).Italic(true).PaddingLeft(4)

	importanceStyles = map[processor.Importance]lipgloss.Style{
		processor.ImportanceReadNow:        lipgloss.NewStyle().Foreground(green).Bold(true),
		processor.ImportanceSaveForLater:   lipgloss.NewStyle().Foreground(amber),
		processor.ImportanceCloseCandidate: lipgloss.NewStyle().Foreground(muted),
	}
)

func validFormat(format string) bool {
	switch format {
	case formatJSON, formatYAML, formatText:
		return true
	}
	return false
}

func writeResult(w io.Writer, result *processor.AnalysisResult, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	case formatText:
		_, err := io.WriteString(w, renderText(result))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// renderText lists tabs grouped by topic, topics in order of first
// appearance.
func renderText(result *processor.AnalysisResult) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("%d tabs", result.TabCount)))
	b.WriteString("\n")
	if result.TabCount == 0 {
		return b.String()
	}

	counts := make([]string, len(result.ByCategory))
	for i, c := range result.ByCategory {
		counts[i] = fmt.Sprintf("%s %d", c.Category, c.Count)
	}
	b.WriteString(mutedStyle.Render(strings.Join(counts, " · ")))
	b.WriteString("\n")

	order := []string{}
	byTopic := map[string][]processor.AnalyzedTab{}
	for _, tab := range result.Tabs {
		if _, seen := byTopic[tab.Topic]; !seen {
			order = append(order, tab.Topic)
		}
		byTopic[tab.Topic] = append(byTopic[tab.Topic], tab)
	}

	for _, topic := range order {
		b.WriteString(topicStyle.Render(topic))
		b.WriteString("\n")

		for _, tab := range byTopic[topic] {
			title := utils.Truncate(tab.Title, titleWidth-2)
			b.WriteString("  ")
			b.WriteString(titleStyle.Render(title))
			b.WriteString(importanceStyles[tab.Importance].Render(fmt.Sprintf("%-16s", tab.Importance)))
			b.WriteString(mutedStyle.Render(fmt.Sprintf("%-11s %s", tab.Category, tab.URL)))
			b.WriteString("\n")

			if tab.Summary != "" {
				b.WriteString(summaryStyle.Render(tab.Summary))
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}
