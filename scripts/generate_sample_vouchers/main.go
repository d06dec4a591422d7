package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// voucherLine mirrors one line of the voucher catalogue import format.
type voucherLine struct {
	Code          string          `json:"code"`
	Type          string          `json:"type"`
	Value         decimal.Decimal `json:"value"`
	Quantity      int             `json:"quantity"`
	MinOrderValue decimal.Decimal `json:"min_order_value"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	Disabled      bool            `json:"disabled,omitempty"`
}

// generateSampleVouchers writes a gzipped JSON-lines voucher catalogue for local runs.
// SAVE10 and FLAT50K are live, EXPIRED ended last month, PAUSED is disabled and
// SOLDOUT has no units left.
func main() {
	dataDir := "data/vouchers"

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	now := time.Now().UTC().Truncate(24 * time.Hour)
	start := now.AddDate(0, 0, -1)
	end := now.AddDate(0, 3, 0)

	vouchers := []voucherLine{
		{Code: "SAVE10", Type: "PERCENT", Value: decimal.NewFromInt(10), Quantity: 100, MinOrderValue: decimal.NewFromInt(500000), StartDate: start, EndDate: end},
		{Code: "FLAT50K", Type: "FIXED", Value: decimal.NewFromInt(50000), Quantity: 50, MinOrderValue: decimal.NewFromInt(200000), StartDate: start, EndDate: end},
		{Code: "EXPIRED", Type: "PERCENT", Value: decimal.NewFromInt(20), Quantity: 10, MinOrderValue: decimal.Zero, StartDate: now.AddDate(0, -2, 0), EndDate: now.AddDate(0, -1, 0)},
		{Code: "PAUSED", Type: "FIXED", Value: decimal.NewFromInt(100000), Quantity: 10, MinOrderValue: decimal.Zero, StartDate: start, EndDate: end, Disabled: true},
		{Code: "SOLDOUT", Type: "PERCENT", Value: decimal.NewFromInt(50), Quantity: 0, MinOrderValue: decimal.Zero, StartDate: start, EndDate: end},
	}

	filePath := filepath.Join(dataDir, "vouchers.jsonl.gz")
	if err := writeCatalogue(filePath, vouchers); err != nil {
		log.Fatalf("Failed to create %s: %v", filePath, err)
	}

	fmt.Printf("Created %s with %d vouchers\n", filePath, len(vouchers))
	fmt.Println("\nRedeemable codes:")
	fmt.Println("  - SAVE10  (10% off orders above 500,000)")
	fmt.Println("  - FLAT50K (50,000 off orders above 200,000)")
	fmt.Println("\nRejected codes:")
	fmt.Println("  - EXPIRED (outside its date window)")
	fmt.Println("  - PAUSED  (disabled)")
	fmt.Println("  - SOLDOUT (no units left)")
}

func writeCatalogue(filePath string, vouchers []voucherLine) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	enc := json.NewEncoder(gzipWriter)
	for _, v := range vouchers {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to write voucher %s: %w", v.Code, err)
		}
	}

	return nil
}
