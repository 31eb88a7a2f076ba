// paygate/tools/cmd/dummygen/main.go
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var header = []string{"cardNumber", "expiryMonth", "expiryYear", "currency", "amount", "cvv", "idempotencyKey"}

func main() {
	n := flag.Int("n", 100, "number of rows (without header)")
	out := flag.String("out", "testdata/payments.csv", "output CSV path")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	target := flag.String("target", "", "gateway base URL; when set the rows are also POSTed to {target}/v1/payment")
	flag.Parse()

	rows := generate(rand.New(rand.NewSource(*seed)), *n, time.Now())

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write(header)
	if err := w.WriteAll(rows); err != nil {
		log.Fatal(err)
	}
	log.Printf("generated %s (%d rows + header)", *out, *n)

	if *target != "" {
		counts := replay(&http.Client{Timeout: 30 * time.Second}, *target, rows)
		codes := make([]int, 0, len(counts))
		for c := range counts {
			codes = append(codes, c)
		}
		sort.Ints(codes)
		for _, c := range codes {
			log.Printf("HTTP %d: %d", c, counts[c])
		}
	}
}

// generate returns n payment rows. Cards are Luhn-valid with random last
// digits, so against the bank simulator they mix authorized, declined and
// unavailable outcomes. Every tenth row reuses the previous idempotency key.
func generate(rnd *rand.Rand, n int, now time.Time) [][]string {
	currencies := []string{"GBP", "USD", "EUR"}
	rows := make([][]string, 0, n)
	key := ""
	for i := 0; i < n; i++ {
		if i%10 != 9 || key == "" {
			key = uuid.NewString()
		}
		expiry := now.AddDate(0, 1+rnd.Intn(60), 0)
		rows = append(rows, []string{
			cardNumber(rnd),
			strconv.Itoa(int(expiry.Month())),
			strconv.Itoa(expiry.Year()),
			currencies[rnd.Intn(len(currencies))],
			strconv.Itoa(1 + rnd.Intn(100000)),
			fmt.Sprintf("%03d", rnd.Intn(1000)),
			key,
		})
	}
	return rows
}

func cardNumber(rnd *rand.Rand) string {
	b := make([]byte, 15, 16)
	b[0] = '4'
	for i := 1; i < len(b); i++ {
		b[i] = byte('0' + rnd.Intn(10))
	}
	return string(append(b, checkDigit(b)))
}

// checkDigit computes the Luhn digit to append to partial.
func checkDigit(partial []byte) byte {
	sum := 0
	for i := len(partial) - 1; i >= 0; i-- {
		d := int(partial[i] - '0')
		if (len(partial)-1-i)%2 == 0 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return byte('0' + (10-sum%10)%10)
}

func replay(c *http.Client, target string, rows [][]string) map[int]int {
	counts := map[int]int{}
	for _, row := range rows {
		body, err := json.Marshal(requestBody(row))
		if err != nil {
			log.Fatal(err)
		}
		req, err := http.NewRequest(http.MethodPost, target+"/v1/payment", bytes.NewReader(body))
		if err != nil {
			log.Fatal(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", row[6])
		resp, err := c.Do(req)
		if err != nil {
			counts[0]++
			continue
		}
		resp.Body.Close()
		counts[resp.StatusCode]++
	}
	return counts
}

func requestBody(row []string) map[string]any {
	month, _ := strconv.Atoi(row[1])
	year, _ := strconv.Atoi(row[2])
	amount, _ := strconv.ParseInt(row[4], 10, 64)
	return map[string]any{
		"cardNumber":  row[0],
		"expiryMonth": month,
		"expiryYear":  year,
		"currency":    row[3],
		"amount":      amount,
		"cvv":         row[5],
	}
}
