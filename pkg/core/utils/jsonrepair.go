// Package utils holds the JSON hygiene layer for reasoning-service
// output. Models wrap their JSON in markdown fences, leak reasoning tags
// and produce structurally sloppy payloads; everything here exists to
// turn that into parseable JSON before the caller sees it.
package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

var (
	thinkPattern     = regexp.MustCompile(`(?s)<think>.*?</think>`)
	fencedJSON       = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	fencedAny        = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
	outerObjectChunk = regexp.MustCompile(`(?s)\{.*\}`)
)

// StripWrapping removes reasoning tags and markdown fencing around a JSON
// payload and narrows to the outermost object. It never fails; the
// result still has to survive parsing.
func StripWrapping(raw string) string {
	raw = thinkPattern.ReplaceAllString(raw, "")

	if strings.Contains(raw, "```json") {
		if m := fencedJSON.FindStringSubmatch(raw); m != nil {
			raw = m[1]
		}
	} else if strings.Contains(raw, "```") {
		if m := fencedAny.FindStringSubmatch(raw); m != nil {
			raw = m[1]
		}
	}

	if m := outerObjectChunk.FindString(raw); m != "" {
		raw = m
	}
	return strings.TrimSpace(raw)
}

// RepairJSON fixes common LLM output defects (missing quotes, trailing
// commas, unclosed brackets, TRUE/Null casing, comments).
func RepairJSON(malformed string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformed)
	if err != nil {
		return "", fmt.Errorf("JSON_REPAIR_FAILED: %v", err)
	}
	return repaired, nil
}

// SmartParse unmarshals raw into schema with escalating leniency:
// strip wrapping + standard parse, then repair, then Hjson as the most
// permissive last resort. The error of the strict stage is reported when
// all stages fail, since it describes the original payload best.
func SmartParse(raw string, schema any) error {
	stripped := StripWrapping(raw)

	strictErr := json.Unmarshal([]byte(stripped), schema)
	if strictErr == nil {
		return nil
	}

	if repaired, err := RepairJSON(stripped); err == nil {
		if json.Unmarshal([]byte(repaired), schema) == nil {
			return nil
		}
	}

	if hjson.Unmarshal([]byte(stripped), schema) == nil {
		return nil
	}

	return fmt.Errorf("JSON_STRUCTURAL_ERROR: %v (payload: %.200s)", strictErr, stripped)
}
