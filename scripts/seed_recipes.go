// seed_recipes.go loads a recipe book CSV and upserts each recipe via the Larder API.
//
// Usage:
//
//	go run scripts/seed_recipes.go -recipes recipes.csv -api http://localhost:8700 -token $LARDER_ADMIN_TOKEN
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/MikeSquared-Agency/Larder/internal/recipebook"
)

func main() {
	recipesPath := flag.String("recipes", "recipes.csv", "path to recipe book CSV")
	apiURL := flag.String("api", "http://localhost:8700", "Larder API base URL")
	clientID := flag.String("client", "seed", "X-Client-ID header value")
	token := flag.String("token", "", "admin token")
	dryRun := flag.Bool("dry-run", false, "print recipes without posting")
	flag.Parse()

	recipes, err := recipebook.LoadRecipes(*recipesPath)
	if err != nil {
		log.Fatalf("load recipes: %v", err)
	}
	log.Printf("parsed %d recipes from %s", len(recipes), *recipesPath)

	if *dryRun {
		for i, r := range recipes {
			fmt.Printf("[%d] %s %q (%d min, %d kcal, %d ingredients)\n",
				i+1, r.ID, r.Name, r.CookingTime, r.Calories, len(r.Ingredients))
		}
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}
	upserted, skipped := 0, 0
	for _, r := range recipes {
		if err := r.Validate(); err != nil {
			log.Printf("skip %q: %v", r.ID, err)
			skipped++
			continue
		}
		body, _ := json.Marshal(r)
		req, err := http.NewRequest("POST", *apiURL+"/api/v1/recipes", bytes.NewReader(body))
		if err != nil {
			log.Printf("skip %q: %v", r.ID, err)
			skipped++
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Client-ID", *clientID)
		if *token != "" {
			req.Header.Set("Authorization", "Bearer "+*token)
		}

		resp, err := client.Do(req)
		if err != nil {
			log.Printf("skip %q: %v", r.ID, err)
			skipped++
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			upserted++
		} else {
			log.Printf("skip %q: status %d", r.ID, resp.StatusCode)
			skipped++
		}
	}

	log.Printf("done: %d upserted, %d skipped", upserted, skipped)
}
