package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xrayaid/xrayaid/internal/database"
	"github.com/xrayaid/xrayaid/internal/models"
	"github.com/xrayaid/xrayaid/internal/predict"
)

func main() {
	var (
		imagePath = flag.String("image", "", "Path to a chest X-ray image")
		ownerID   = flag.String("owner", "cli", "Owner ID to record the diagnosis under")
		save      = flag.Bool("save", false, "Persist the diagnosis record to the database")
		useMock   = flag.Bool("mock", false, "Use the mock predictor instead of the inference backend")
	)
	flag.Parse()

	if *imagePath == "" {
		log.Fatal("Please provide an image with the -image flag")
	}

	data, err := os.ReadFile(*imagePath)
	if err != nil {
		log.Fatal("Failed to read image:", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(*imagePath))
	if contentType == "" {
		contentType = "image/png"
	}

	var predictor predict.Client
	if *useMock {
		predictor = predict.NewMockClient(time.Now().UnixNano())
	} else {
		predictor = predict.NewHTTPClient(getEnv("INFERENCE_URL", "http://localhost:8000"), 30*time.Second)
	}

	fmt.Printf("Analyzing %s (%d bytes)...\n", filepath.Base(*imagePath), len(data))

	ctx := context.Background()
	result, err := predictor.Predict(ctx, data, contentType)
	if err != nil {
		log.Fatal("Inference failed:", err)
	}

	positiveThreshold := getEnvFloat("POSITIVE_THRESHOLD", 0.25)
	highRiskThreshold := getEnvFloat("HIGH_RISK_THRESHOLD", 0.60)

	set := result.Predictions
	fmt.Printf("\nTop finding: %s (%.0f%%)\n", set.TopLabel(), set.TopScore()*100)
	fmt.Printf("Positive finding: %v, tier: %s\n\n",
		set.HasPositiveFinding(positiveThreshold),
		set.ConfidenceTier(positiveThreshold, highRiskThreshold))

	for _, p := range set.Entries() {
		fmt.Printf("  %-24s %5.1f%%\n", p.Label, p.Probability*100)
	}

	if !*save {
		return
	}

	dbConfig := database.Config{
		Type:       getEnv("DB_TYPE", "sqlite"),
		Host:       getEnv("DB_HOST", "localhost"),
		Port:       5432,
		User:       getEnv("DB_USER", "xrayaid"),
		Password:   getEnv("DB_PASSWORD", "xrayaid_dev"),
		Name:       getEnv("DB_NAME", "xrayaid"),
		SQLitePath: getEnv("DB_PATH", "./xrayaid.db"),
	}

	db, err := database.NewDB(dbConfig)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	record := models.NewDiagnosisRecord(*ownerID, "cli", "file://"+*imagePath,
		result, positiveThreshold, highRiskThreshold)

	repo := database.NewDiagnosisRepository(db)
	if err := repo.Insert(ctx, record); err != nil {
		log.Fatal("Failed to save record:", err)
	}

	fmt.Printf("\n✓ Saved diagnosis record %s\n", record.ID)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}
