package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xrayaid/xrayaid/internal/predict"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "./xrayaid.db"
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	fmt.Println("🔍 Checking Diagnostic Service Backends")
	fmt.Println("=======================================")

	checkInference()
	checkCareProviders()
	checkDiagnoses(db)
}

func checkInference() {
	inferenceURL := os.Getenv("INFERENCE_URL")
	if inferenceURL == "" {
		inferenceURL = "http://localhost:8000"
	}

	fmt.Printf("\n🧠 Inference backend: %s\n", inferenceURL)

	client := predict.NewHTTPClient(inferenceURL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := client.Health(ctx)
	if err != nil {
		fmt.Printf("❌ Inference backend unreachable: %v\n", err)
		fmt.Println("   Set USE_MOCK_PREDICTOR=true to run without it")
		return
	}

	fmt.Printf("✅ Inference backend healthy: model=%s, labels=%d\n", info.Model, info.Labels)
}

func checkCareProviders() {
	fmt.Println("\n🏥 Care providers:")

	if os.Getenv("GOOGLE_MAPS_API_KEY") != "" {
		fmt.Println("   - Google Places: Enabled")
	} else {
		fmt.Println("   - Google Places: Disabled (GOOGLE_MAPS_API_KEY not set)")
	}

	overpass := os.Getenv("OVERPASS_ENDPOINT")
	if overpass == "" {
		overpass = "https://overpass-api.de/api/interpreter (default)"
	}
	fmt.Printf("   - Overpass: %s\n", overpass)

	if file := os.Getenv("STATIC_FACILITIES_FILE"); file != "" {
		fmt.Printf("   - Static list: %s\n", file)
	} else {
		fmt.Println("   - Static list: Disabled (STATIC_FACILITIES_FILE not set)")
	}
}

func checkDiagnoses(db *sql.DB) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM diagnoses").Scan(&count); err != nil {
		fmt.Println("\n❌ No diagnoses table found (service not yet run against this database)")
		return
	}
	fmt.Printf("\n📋 Total diagnoses: %d\n", count)

	rows, err := db.Query(`
		SELECT
			owner_id,
			top_label,
			top_score,
			has_positive_finding,
			predictions,
			created_at
		FROM diagnoses
		ORDER BY created_at DESC
		LIMIT 5
	`)
	if err != nil {
		log.Fatal("Failed to query diagnoses:", err)
	}
	defer rows.Close()

	fmt.Println("\n📊 Recent Diagnoses:")
	fmt.Println("--------------------")

	shown := 0
	for rows.Next() {
		var ownerID, topLabel, predictionsJSON, createdAt string
		var topScore float64
		var positive bool

		if err := rows.Scan(&ownerID, &topLabel, &topScore, &positive, &predictionsJSON, &createdAt); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}

		shown++
		marker := "🟢"
		if positive {
			marker = "🔴"
		}
		fmt.Printf("\n%s Owner %s: %s (%.0f%%) at %s\n", marker, ownerID, topLabel, topScore*100, createdAt)

		var predictions []struct {
			Label       string  `json:"label"`
			Probability float64 `json:"probability"`
		}
		if err := json.Unmarshal([]byte(predictionsJSON), &predictions); err == nil && len(predictions) > 1 {
			fmt.Printf("   🏷️  Findings: ")
			for i, p := range predictions {
				if i > 0 {
					fmt.Print(", ")
				}
				fmt.Printf("%s %.0f%%", p.Label, p.Probability*100)
				if i >= 2 {
					fmt.Print("...")
					break
				}
			}
			fmt.Println()
		}
	}

	if shown == 0 {
		fmt.Println("No diagnoses found yet. Upload a chest X-ray to test!")
	} else {
		fmt.Printf("\n✅ Found %d recent diagnoses.\n", shown)
	}
}
