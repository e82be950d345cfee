package recipebook

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
)

// ReadLexicon reads one heat verb per line. Blank lines and lines starting
// with # are skipped.
func ReadLexicon(r io.Reader) (mealplan.HeatLexicon, error) {
	var verbs []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		verbs = append(verbs, text)
	}
	if err := sc.Err(); err != nil {
		return mealplan.HeatLexicon{}, fmt.Errorf("read lexicon: %w", err)
	}
	return mealplan.NewHeatLexicon(verbs), nil
}

// LoadLexicon reads a lexicon file. An empty path yields the default verbs.
func LoadLexicon(path string) (mealplan.HeatLexicon, error) {
	if path == "" {
		return mealplan.NewHeatLexicon(mealplan.DefaultHeatVerbs), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return mealplan.HeatLexicon{}, fmt.Errorf("open lexicon: %w", err)
	}
	defer f.Close()
	return ReadLexicon(f)
}
