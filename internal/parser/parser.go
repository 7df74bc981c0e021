/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package parser extracts schedule entries from the rendered search page.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/andref2015/train-agent/internal/models"
)

// RootElement is the application element the page renders into.
const RootElement = "app-main"

const tripClass = "trip"

// maxRowTimes is the most times one service row shows: departure, arrival
// and a travel duration.
const maxRowTimes = 3

var (
	timePattern = regexp.MustCompile(`\b([01]?[0-9]|2[0-3]):([0-5][0-9])`)
	// The compact text rendering glues departure and arrival together.
	pairPattern = regexp.MustCompile(`([01]?[0-9]|2[0-3]):([0-5][0-9])([01]?[0-9]|2[0-3]):([0-5][0-9])`)
)

// Parse returns the services listed in content. A page without the
// application root is a ParseFailure; a root without services yields an
// empty slice.
func Parse(content models.RawContent) ([]models.ScheduleEntry, error) {
	doc, err := html.Parse(strings.NewReader(content.HTML))
	if err != nil {
		return nil, models.NewError(models.ErrParseFailure, "Could not read the schedule page", err)
	}

	root := findElement(doc, RootElement)
	if root == nil {
		return nil, models.NewError(models.ErrParseFailure, "Schedule page did not render",
			fmt.Errorf("element %s not found in %s", RootElement, content.URL))
	}

	entries, unresolved := tripEntries(root)
	if unresolved != nil {
		return nil, models.NewError(models.ErrParseFailure, "Could not read the schedule list",
			fmt.Errorf("%s.%s holds several services but no rows", unresolved.Data, classOf(unresolved)))
	}
	if len(entries) > 0 {
		return entries, nil
	}
	return fromText(textOf(root, "")), nil
}

func fromText(text string) []models.ScheduleEntry {
	entries := []models.ScheduleEntry{}
	for _, m := range pairPattern.FindAllStringSubmatch(text, -1) {
		dep := toTime(m[1:3])
		if isNoise(dep) {
			continue
		}
		entries = append(entries, models.NewScheduleEntry(dep, toTime(m[3:5])))
	}
	return entries
}

// isNoise drops matches in 00:00-00:29 and 01:00-01:09, which come from
// clock and duration text around the list rather than from departures.
func isNoise(t models.TimeOfDay) bool {
	switch t.Hour {
	case 0:
		return t.Minute < 30
	case 1:
		return t.Minute < 10
	}
	return false
}

func toTime(parts []string) models.TimeOfDay {
	hour := atoi(parts[0])
	minute := atoi(parts[1])
	return models.TimeOfDay{Hour: hour, Minute: minute}
}

func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// tripEntries reads one entry from every innermost trip element whose text
// holds at least two times. Headers and other trip-classed elements without
// a time pair are ignored. A trip element holding more than one pair without
// any trip row inside it is a list whose rows could not be told apart; it is
// returned as unresolved so the caller does not report a partial list.
func tripEntries(root *html.Node) (entries []models.ScheduleEntry, unresolved *html.Node) {
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		matched := false
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				matched = true
			}
		}
		if matched || n.Type != html.ElementNode || !hasClass(n, tripClass) {
			return matched
		}
		times := timePattern.FindAllStringSubmatch(textOf(n, " "), maxRowTimes+1)
		if len(times) < 2 {
			return false
		}
		if len(times) > maxRowTimes {
			if unresolved == nil {
				unresolved = n
			}
			return true
		}
		entries = append(entries, models.NewScheduleEntry(toTime(times[0][1:3]), toTime(times[1][1:3])))
		return true
	}
	walk(root)
	return entries, unresolved
}

func classOf(n *html.Node) string {
	for _, attr := range n.Attr {
		if attr.Key == "class" {
			return strings.Join(strings.Fields(attr.Val), ".")
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, token := range strings.Fields(attr.Val) {
			if strings.Contains(token, class) {
				return true
			}
		}
	}
	return false
}

// textOf concatenates trimmed text nodes with sep, skipping scripts and
// styles. An empty sep reproduces the compact rendering of the page body.
func textOf(n *html.Node, sep string) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text := strings.TrimSpace(n.Data)
			if text == "" {
				return
			}
			if b.Len() > 0 {
				b.WriteString(sep)
			}
			b.WriteString(text)
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
