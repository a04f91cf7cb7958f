package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/smartpixl/smartpixl/internal/hit"
)

// debug-spill decodes failover files (plain or archived) and prints a
// per-company breakdown. Useful when judging how much traffic a forge
// outage spilled and whether catch-up has anything left to replay.
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: debug-spill <file.jsonl|file.jsonl.zst> [...]")
		os.Exit(1)
	}

	total, malformed := 0, 0
	perCompany := map[string]int{}
	var earliest, latest time.Time

	for _, path := range os.Args[1:] {
		n, bad, err := scanFile(path, perCompany, &earliest, &latest)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("%s: %d records, %d malformed\n", path, n, bad)
		total += n
		malformed += bad
	}

	companies := make([]string, 0, len(perCompany))
	for c := range perCompany {
		companies = append(companies, c)
	}
	sort.Strings(companies)

	fmt.Println()
	for _, c := range companies {
		fmt.Printf("  %-20s %d\n", c, perCompany[c])
	}
	fmt.Printf("\nTotal: %d records (%d malformed)", total, malformed)
	if !earliest.IsZero() {
		fmt.Printf(", %s .. %s", earliest.Format(time.RFC3339), latest.Format(time.RFC3339))
	}
	fmt.Println()
}

func scanFile(path string, perCompany map[string]int, earliest, latest *time.Time) (records, malformed int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return 0, 0, err
		}
		defer zr.Close()
		r = zr
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var h hit.Hit
		if err := json.Unmarshal(line, &h); err != nil {
			malformed++
			continue
		}
		records++
		company := h.CompanyID
		if company == "" {
			company = "(none)"
		}
		perCompany[company]++
		if !h.ReceivedAt.IsZero() {
			if earliest.IsZero() || h.ReceivedAt.Before(*earliest) {
				*earliest = h.ReceivedAt
			}
			if h.ReceivedAt.After(*latest) {
				*latest = h.ReceivedAt
			}
		}
	}
	return records, malformed, sc.Err()
}
