// Package recipebook reads and writes the data files the planner consumes:
// recipe books as CSV, preference profiles as text or YAML, and heat-verb
// lexicons.
package recipebook

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
)

var ErrMalformedRecipe = errors.New("malformed recipe row")

// Columns is the header written by WriteRecipes. ReadRecipes accepts the
// columns in any order; only id is mandatory.
var Columns = []string{
	"id", "name", "cooking_time", "calories", "rating", "servings",
	"cuisine", "ingredients", "shelf_life", "instructions",
}

// ReadRecipes parses a recipe CSV. Ingredients and shelf life are encoded
// as "name:qty;name:qty".
func ReadRecipes(r io.Reader) ([]mealplan.Recipe, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["id"]; !ok {
		return nil, fmt.Errorf("%w: header has no id column", ErrMalformedRecipe)
	}
	cr.FieldsPerRecord = len(header)

	var recipes []mealplan.Recipe
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRecipe, line, err)
		}
		get := func(name string) string {
			if i, ok := col[name]; ok {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}

		recipe, err := parseRow(get)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRecipe, line, err)
		}
		recipes = append(recipes, recipe)
	}
	return recipes, nil
}

func parseRow(get func(string) string) (mealplan.Recipe, error) {
	r := mealplan.Recipe{
		ID:           get("id"),
		Name:         get("name"),
		Cuisine:      get("cuisine"),
		Instructions: get("instructions"),
	}
	var err error
	if r.CookingTime, err = atoi(get("cooking_time")); err != nil {
		return r, fmt.Errorf("cooking_time: %w", err)
	}
	if r.Calories, err = atoi(get("calories")); err != nil {
		return r, fmt.Errorf("calories: %w", err)
	}
	if r.Servings, err = atoi(get("servings")); err != nil {
		return r, fmt.Errorf("servings: %w", err)
	}
	if s := get("rating"); s != "" {
		if r.Rating, err = strconv.ParseFloat(s, 64); err != nil {
			return r, fmt.Errorf("rating: %w", err)
		}
	}
	if r.Ingredients, err = parseQuantities(get("ingredients")); err != nil {
		return r, fmt.Errorf("ingredients: %w", err)
	}
	if r.ShelfLife, err = parseQuantities(get("shelf_life")); err != nil {
		return r, fmt.Errorf("shelf_life: %w", err)
	}
	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseQuantities(s string) (map[string]int, error) {
	if s == "" {
		return nil, nil
	}
	out := make(map[string]int)
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, qty, ok := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("entry %q is not name:qty", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", part, err)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%q listed twice", name)
		}
		out[name] = n
	}
	return out, nil
}

func formatQuantities(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + strconv.Itoa(m[k])
	}
	return strings.Join(parts, ";")
}

// WriteRecipes writes recipes in the format ReadRecipes accepts.
func WriteRecipes(w io.Writer, recipes []mealplan.Recipe) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range recipes {
		row := []string{
			r.ID,
			r.Name,
			strconv.Itoa(r.CookingTime),
			strconv.Itoa(r.Calories),
			strconv.FormatFloat(r.Rating, 'g', -1, 64),
			strconv.Itoa(r.Servings),
			r.Cuisine,
			formatQuantities(r.Ingredients),
			formatQuantities(r.ShelfLife),
			r.Instructions,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LoadRecipes reads a recipe CSV from disk.
func LoadRecipes(path string) ([]mealplan.Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipe book: %w", err)
	}
	defer f.Close()

	recipes, err := ReadRecipes(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recipes, nil
}
