package recipebook

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
)

var ErrMalformedProfile = errors.New("malformed preference profile")

const sectionBreak = "---"

// ParseProfile reads the text profile format:
//
//	1800                 total calorie budget
//	breakfast 20         slot name and max cooking minutes
//	dinner 45 hot        "hot" asks for a heated dish
//	---
//	egg;6                available ingredient and quantity
//	rice;2
//	---
//
// The ingredient section and the trailing separator are optional. A slot
// or ingredient named twice is an error.
func ParseProfile(r io.Reader) (mealplan.Profile, error) {
	var p mealplan.Profile
	sc := bufio.NewScanner(r)

	line := 0
	next := func() (string, bool) {
		for sc.Scan() {
			line++
			text := strings.TrimSpace(sc.Text())
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			return text, true
		}
		return "", false
	}
	fail := func(format string, args ...any) (mealplan.Profile, error) {
		return mealplan.Profile{}, fmt.Errorf("%w: line %d: %s", ErrMalformedProfile, line, fmt.Sprintf(format, args...))
	}

	text, ok := next()
	if !ok {
		if err := sc.Err(); err != nil {
			return mealplan.Profile{}, fmt.Errorf("read profile: %w", err)
		}
		return fail("empty profile")
	}
	budget, err := strconv.Atoi(text)
	if err != nil {
		return fail("calorie budget %q is not an integer", text)
	}
	p.MaxTotalCalories = budget

	seenSlot := make(map[string]bool)
	for {
		text, ok = next()
		if !ok || text == sectionBreak {
			break
		}
		fields := strings.Fields(text)
		if len(fields) < 2 || len(fields) > 3 {
			return fail("slot line %q is not \"name minutes [hot]\"", text)
		}
		minutes, err := strconv.Atoi(fields[1])
		if err != nil {
			return fail("slot %q: max cooking time %q is not an integer", fields[0], fields[1])
		}
		slot := mealplan.Slot{Name: fields[0], MaxCookingTime: minutes}
		if len(fields) == 3 {
			if !strings.EqualFold(fields[2], "hot") {
				return fail("slot %q: unknown flag %q", fields[0], fields[2])
			}
			slot.Hot = true
		}
		if seenSlot[slot.Name] {
			return fail("slot %q requested more than once", slot.Name)
		}
		seenSlot[slot.Name] = true
		p.Slots = append(p.Slots, slot)
	}

	if ok {
		for {
			text, ok = next()
			if !ok || text == sectionBreak {
				break
			}
			name, qty, found := strings.Cut(text, ";")
			name = strings.TrimSpace(name)
			if !found || name == "" {
				return fail("ingredient line %q is not \"name;qty\"", text)
			}
			n, err := strconv.Atoi(strings.TrimSpace(qty))
			if err != nil {
				return fail("ingredient %q: quantity %q is not an integer", name, qty)
			}
			if p.Available == nil {
				p.Available = make(map[string]int)
			}
			if _, dup := p.Available[name]; dup {
				return fail("ingredient %q mentioned more than once", name)
			}
			p.Available[name] = n
		}
	}
	if err := sc.Err(); err != nil {
		return mealplan.Profile{}, fmt.Errorf("read profile: %w", err)
	}

	if err := p.Validate(); err != nil {
		return mealplan.Profile{}, fmt.Errorf("%w: %v", ErrMalformedProfile, err)
	}
	return p, nil
}

// ParseProfileYAML reads the YAML form of a profile.
func ParseProfileYAML(data []byte) (mealplan.Profile, error) {
	var p mealplan.Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return mealplan.Profile{}, fmt.Errorf("%w: %v", ErrMalformedProfile, err)
	}
	if err := p.Validate(); err != nil {
		return mealplan.Profile{}, fmt.Errorf("%w: %v", ErrMalformedProfile, err)
	}
	return p, nil
}

// LoadProfile reads a profile from disk, choosing YAML for .yaml and .yml
// files and the text format otherwise.
func LoadProfile(path string) (mealplan.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return mealplan.Profile{}, fmt.Errorf("read profile: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseProfileYAML(data)
	}
	return ParseProfile(strings.NewReader(string(data)))
}
