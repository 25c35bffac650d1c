package uci

import (
	"fmt"
	"sort"
	"strings"
)

// Preset is a named engine strength: handshake options plus per-search limits.
type Preset struct {
	Name           string
	SkillLevel     int
	Threads        int
	HashMB         int
	MoveTimeMillis int
	Depth          int
	Nodes          int
}

func (p Preset) Options() Options {
	skill := p.SkillLevel
	return Options{Threads: p.Threads, HashMB: p.HashMB, SkillLevel: &skill}
}

func (p Preset) Limits() Limits {
	return Limits{Depth: p.Depth, MoveTimeMillis: p.MoveTimeMillis, Nodes: p.Nodes}
}

const defaultPresetThreads = 2

var presets = map[string]Preset{
	"level1": {Name: "level1", SkillLevel: 0, Threads: defaultPresetThreads, HashMB: 16, MoveTimeMillis: 20, Depth: 5},
	"level2": {Name: "level2", SkillLevel: 0, Threads: defaultPresetThreads, HashMB: 16, MoveTimeMillis: 60, Depth: 6},
	"level3": {Name: "level3", SkillLevel: 1, Threads: defaultPresetThreads, HashMB: 24, MoveTimeMillis: 80, Depth: 8},
	"level4": {Name: "level4", SkillLevel: 3, Threads: defaultPresetThreads, HashMB: 32, MoveTimeMillis: 140, Depth: 10},
	"level5": {Name: "level5", SkillLevel: 7, Threads: defaultPresetThreads, HashMB: 48, MoveTimeMillis: 200, Depth: 12},
	"level6": {Name: "level6", SkillLevel: 11, Threads: defaultPresetThreads, HashMB: 64, MoveTimeMillis: 300, Depth: 16},
	"level7": {Name: "level7", SkillLevel: 16, Threads: defaultPresetThreads, HashMB: 96, MoveTimeMillis: 500, Depth: 20},
	"level8": {Name: "level8", SkillLevel: 20, Threads: 6, HashMB: 128, MoveTimeMillis: 1000, Depth: 30},
}

var presetAliases = map[string]string{
	"beginner":     "level1",
	"intermediate": "level5",
	"advanced":     "level7",
	"master":       "level8",
}

// LookupPreset resolves a level name or one of its aliases.
func LookupPreset(name string) (Preset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := presetAliases[key]; ok {
		key = alias
	}
	p, ok := presets[key]
	if !ok {
		return Preset{}, fmt.Errorf("unknown engine level %q (known: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return p, nil
}

func PresetNames() []string {
	out := make([]string, 0, len(presets))
	for name := range presets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func ValidatePreset(p Preset) error {
	switch {
	case p.SkillLevel < 0 || p.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", p.SkillLevel)
	case p.Threads <= 0:
		return fmt.Errorf("threads must be > 0: %d", p.Threads)
	case p.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", p.HashMB)
	case p.MoveTimeMillis < 0 || p.Depth < 0 || p.Nodes < 0:
		return fmt.Errorf("search limits must be >= 0")
	}
	if _, err := GoCommand(p.Limits()); err != nil {
		return fmt.Errorf("preset %s: %w", p.Name, err)
	}
	return nil
}
