package payout

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// Target is one payout recipient. Row is the position in the input file
// (1-indexed, counting the header) so validation errors point at the
// offending line.
type Target struct {
	Address    string
	AmountSats int64
	Row        int
}

var satsPerBTC = decimal.New(1, 8)

// LoadTargets reads payout targets from a CSV file with required columns
// Address and Amount (decimal BTC).
func LoadTargets(path string) ([]Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open payout list: %w", err)
	}
	defer f.Close()

	return ReadTargets(f)
}

// ReadTargets parses payout targets from CSV data. The header row must
// contain Address and Amount columns (case-insensitive, any order).
// Amounts are decimal BTC and convert to satoshis by truncation.
func ReadTargets(r io.Reader) ([]Target, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	addrCol, amountCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "address":
			addrCol = i
		case "amount":
			amountCol = i
		}
	}
	if addrCol < 0 || amountCol < 0 {
		return nil, fmt.Errorf("CSV header must contain Address and Amount columns, got %v", header)
	}

	var targets []Target
	for i := 0; ; i++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row := i + 2 // 1-indexed plus header
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		address := strings.TrimSpace(record[addrCol])
		amountStr := strings.TrimSpace(record[amountCol])

		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid amount %q: %w", row, amountStr, err)
		}

		targets = append(targets, Target{
			Address: address,
			// Truncate, never round: 1 BTC = 100,000,000 sats.
			AmountSats: amount.Mul(satsPerBTC).IntPart(),
			Row:        row,
		})
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("payout list contains no rows")
	}

	return targets, nil
}
