// Package universe decides which tokens the allocator trades and keeps the
// token registry (tokens.json) in step with the whitelist.
package universe

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadWhitelist reads a JSON array of symbols. Symbols are upper-cased, blank
// entries dropped and duplicates removed, keeping the first occurrence.
func LoadWhitelist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read whitelist: %w", err)
	}

	var symbols []string
	if err := json.Unmarshal(data, &symbols); err != nil {
		return nil, fmt.Errorf("failed to parse whitelist %s: %w", path, err)
	}
	return Normalize(symbols), nil
}

// Normalize upper-cases and de-duplicates symbols, preserving order.
func Normalize(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Filter drops every symbol listed in exclude (case insensitive).
func Filter(symbols, exclude []string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, s := range exclude {
		skip[strings.ToUpper(s)] = true
	}

	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if !skip[strings.ToUpper(s)] {
			out = append(out, s)
		}
	}
	return out
}

// Source resolves the traded universe from an inline list or a whitelist file.
type Source struct {
	Inline  []string
	Path    string
	Exclude []string
}

// Symbols returns the whitelist minus the excluded symbols. An inline list
// takes precedence over the file.
func (s Source) Symbols() ([]string, error) {
	symbols := Normalize(s.Inline)
	if len(symbols) == 0 {
		loaded, err := LoadWhitelist(s.Path)
		if err != nil {
			return nil, err
		}
		symbols = loaded
	}
	symbols = Filter(symbols, s.Exclude)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("universe is empty after excluding %s", strings.Join(s.Exclude, ", "))
	}
	return symbols, nil
}

// Whitelist returns the full whitelist, excluded symbols included.
func (s Source) Whitelist() ([]string, error) {
	if symbols := Normalize(s.Inline); len(symbols) > 0 {
		return symbols, nil
	}
	return LoadWhitelist(s.Path)
}
