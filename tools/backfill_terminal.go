// Fetch candles from the MT5 sidecar and write CSV for offline analysis.
//
// Usage examples:
//   # On host (sidecar published on localhost:8787):
//   BRIDGE_URL=http://localhost:8787 go run ./tools/backfill_terminal.go \
//     -symbol EURUSD -timeframe M5 -count 1000 -out data/EURUSD-M5.csv
//
// Notes:
// - Sidecar /rates returns [{"time","open","high","low","close","tick_volume","real_volume"}]
//   with numeric fields and time in UNIX seconds. We convert time -> RFC3339 for the CSV.
// - The CSV header is: time,open,high,low,close,tick_volume,volume
// - Rows are deduplicated by time and sorted ascending.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type rateRow struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	TickVolume int64   `json:"tick_volume"`
	RealVolume int64   `json:"real_volume"`
}

func main() {
	var (
		symbol    = flag.String("symbol", "EURUSD", "Symbol (e.g., EURUSD)")
		timeframe = flag.String("timeframe", "M5", "Timeframe (M1,M5,M15,M30,H1,H4,D1)")
		count     = flag.Int("count", 1000, "Bars to fetch ending at the current bar")
		outPath   = flag.String("out", "data/EURUSD-M5.csv", "Output CSV path")
	)
	flag.Parse()

	_ = godotenv.Load(".env") // optional

	bridgeURL := getenv("BRIDGE_URL", "http://127.0.0.1:8787")
	q := url.Values{}
	q.Set("symbol", *symbol)
	q.Set("timeframe", strings.ToUpper(*timeframe))
	q.Set("count", strconv.Itoa(*count))
	u := strings.TrimRight(bridgeURL, "/") + "/rates?" + q.Encode()

	hc := &http.Client{Timeout: 30 * time.Second}
	resp, err := hc.Get(u)
	if err != nil {
		fail(fmt.Errorf("GET %s: %w", u, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fail(fmt.Errorf("sidecar /rates status %d", resp.StatusCode))
	}

	var rows []rateRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		fail(fmt.Errorf("decode JSON: %w", err))
	}
	rows = dedupe(rows)
	if len(rows) == 0 {
		fail(fmt.Errorf("no candles returned for %s %s", *symbol, *timeframe))
	}

	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		fail(err)
	}
	f, err := os.Create(*outPath)
	if err != nil {
		fail(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "open", "high", "low", "close", "tick_volume", "volume"}); err != nil {
		fail(err)
	}
	for _, r := range rows {
		rec := []string{
			time.Unix(r.Time, 0).UTC().Format(time.RFC3339),
			ff(r.Open), ff(r.High), ff(r.Low), ff(r.Close),
			strconv.FormatInt(r.TickVolume, 10),
			strconv.FormatInt(r.RealVolume, 10),
		}
		if err := w.Write(rec); err != nil {
			fail(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fail(err)
	}

	fmt.Printf("Wrote %s (%d rows)\n", *outPath, len(rows))
}

func dedupe(rows []rateRow) []rateRow {
	seen := make(map[int64]rateRow, len(rows))
	for _, r := range rows {
		seen[r.Time] = r
	}
	out := make([]rateRow, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "backfill:", err)
	os.Exit(1)
}
