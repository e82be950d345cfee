// Package catalog pulls recipes from an upstream recipe catalogue service.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/Larder/internal/mealplan"
)

// maxPages guards against a catalogue that never stops paginating.
const maxPages = 500

type Client interface {
	ListRecipes(ctx context.Context) ([]mealplan.Recipe, error)
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type ingredientEntry struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	ShelfLife *int   `json:"shelf_life_slots,omitempty"`
}

type recipeEntry struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Minutes     int               `json:"minutes"`
	Calories    int               `json:"calories"`
	Rating      float64           `json:"rating"`
	Servings    int               `json:"servings"`
	Cuisine     string            `json:"cuisine"`
	Ingredients []ingredientEntry `json:"ingredients"`
	Steps       []string          `json:"steps"`
}

type recipesResponse struct {
	Data     []recipeEntry `json:"data"`
	NextPage int           `json:"next_page"`
}

// ListRecipes follows next_page until the catalogue reports none.
func (c *HTTPClient) ListRecipes(ctx context.Context) ([]mealplan.Recipe, error) {
	var out []mealplan.Recipe
	page := 1
	for i := 0; i < maxPages && page > 0; i++ {
		resp, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Data {
			out = append(out, e.toRecipe())
		}
		page = resp.NextPage
	}
	return out, nil
}

func (c *HTTPClient) fetchPage(ctx context.Context, page int) (*recipesResponse, error) {
	q := url.Values{"page": {strconv.Itoa(page)}}
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/recipes?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-ID", "larder")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("catalog: %d %s", resp.StatusCode, string(body))
	}

	var wrapper recipesResponse
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("catalog: decode page %d: %w", page, err)
	}
	return &wrapper, nil
}

func (e recipeEntry) toRecipe() mealplan.Recipe {
	r := mealplan.Recipe{
		ID:           e.ID,
		Name:         e.Title,
		Cuisine:      strings.ToLower(e.Cuisine),
		CookingTime:  e.Minutes,
		Calories:     e.Calories,
		Servings:     e.Servings,
		Rating:       e.Rating,
		Instructions: JoinSteps(e.Steps),
	}
	for _, ing := range e.Ingredients {
		name := NormalizeIngredient(ing.Name)
		if name == "" {
			continue
		}
		if r.Ingredients == nil {
			r.Ingredients = make(map[string]int)
		}
		r.Ingredients[name] += ing.Quantity
		if ing.ShelfLife != nil {
			if r.ShelfLife == nil {
				r.ShelfLife = make(map[string]int)
			}
			if prev, ok := r.ShelfLife[name]; !ok || *ing.ShelfLife < prev {
				r.ShelfLife[name] = *ing.ShelfLife
			}
		}
	}
	return r
}

// NormalizeIngredient lower-cases and collapses whitespace so catalogue
// names line up with household inventories.
func NormalizeIngredient(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func JoinSteps(steps []string) string {
	var parts []string
	for _, s := range steps {
		s = strings.TrimSpace(s)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
