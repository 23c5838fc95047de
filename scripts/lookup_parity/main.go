// Command lookup_parity replays student lookups against the Go service and
// the legacy service and reports responses that differ.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

type comparison struct {
	StudentID      string
	GoStatus       int
	LegacyStatus   int
	StatusMatch    bool
	BodyMatch      bool
	Error          error
	DurationGo     time.Duration
	DurationLegacy time.Duration
}

func main() {
	var (
		goBase     string
		legacyBase string
		idList     string
		idsPath    string
		timeout    time.Duration
	)

	flag.StringVar(&goBase, "go-base", "http://localhost:8080", "Go API base URL")
	flag.StringVar(&legacyBase, "legacy-base", "http://localhost:8000", "Legacy API base URL")
	flag.StringVar(&idList, "ids", "", "Comma separated student IDs")
	flag.StringVar(&idsPath, "ids-file", "", "File with one student ID per line")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	logr, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(2)
	}
	defer logr.Sync() //nolint:errcheck

	ids, err := loadStudentIDs(idList, idsPath)
	if err != nil {
		logr.Fatal("failed to load student ids", zap.Error(err))
	}

	client := &http.Client{Timeout: timeout}
	results := make([]comparison, 0, len(ids))
	diffs := 0
	for _, id := range ids {
		comp := compareLookup(client, goBase, legacyBase, id)
		if comp.Error != nil || !comp.StatusMatch || !comp.BodyMatch {
			diffs++
		}
		results = append(results, comp)
	}

	printReport(os.Stdout, results)
	logr.Info("lookup parity finished", zap.Int("ids", len(ids)), zap.Int("diffs", diffs))
	if diffs > 0 {
		os.Exit(1)
	}
}

func loadStudentIDs(list, path string) ([]string, error) {
	var ids []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close() //nolint:errcheck
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if id := strings.TrimSpace(scanner.Text()); id != "" {
				ids = append(ids, id)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no student ids given; use -ids or -ids-file")
	}
	return ids, nil
}

func compareLookup(client *http.Client, goBase, legacyBase, studentID string) comparison {
	comp := comparison{StudentID: studentID}
	goStatus, goBody, goDur, goErr := fetchLookup(client, goBase, studentID)
	legacyStatus, legacyBody, legacyDur, legacyErr := fetchLookup(client, legacyBase, studentID)
	comp.DurationGo = goDur
	comp.DurationLegacy = legacyDur

	if goErr != nil {
		comp.Error = fmt.Errorf("go request failed: %w", goErr)
		return comp
	}
	if legacyErr != nil {
		comp.Error = fmt.Errorf("legacy request failed: %w", legacyErr)
		return comp
	}

	comp.GoStatus = goStatus
	comp.LegacyStatus = legacyStatus
	comp.StatusMatch = goStatus == legacyStatus
	comp.BodyMatch = examListsEqual(goBody, legacyBody)
	return comp
}

func fetchLookup(client *http.Client, base, studentID string) (int, []byte, time.Duration, error) {
	endpoint := strings.TrimRight(base, "/") + "/api/exams/" + url.PathEscape(studentID)
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, time.Since(start), fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, time.Since(start), nil
}

// examListsEqual compares two lookup payloads as multisets of exams since
// neither service guarantees an order.
func examListsEqual(a, b []byte) bool {
	var aj, bj []map[string]interface{}
	if err := json.Unmarshal(a, &aj); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bj); err != nil {
		return false
	}
	if len(aj) != len(bj) {
		return false
	}
	return reflect.DeepEqual(canonical(aj), canonical(bj))
}

func canonical(items []map[string]interface{}) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		// encoding/json sorts map keys, so equal objects encode identically.
		raw, _ := json.Marshal(item)
		out = append(out, string(raw))
	}
	sort.Strings(out)
	return out
}

func printReport(w io.Writer, results []comparison) {
	fmt.Fprintln(w, "Lookup Parity Report")
	fmt.Fprintln(w, "====================")
	for _, res := range results {
		status := "OK"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.StatusMatch || !res.BodyMatch {
			status = "DIFF"
		}
		fmt.Fprintf(w, "[%s] %s\n", status, res.StudentID)
		fmt.Fprintf(w, "  Go Status: %d (%s)\n", res.GoStatus, res.DurationGo)
		fmt.Fprintf(w, "  Legacy Status: %d (%s)\n", res.LegacyStatus, res.DurationLegacy)
		if res.Error != nil {
			fmt.Fprintf(w, "  Error: %v\n", res.Error)
		} else {
			fmt.Fprintf(w, "  Status match: %t | Body match: %t\n", res.StatusMatch, res.BodyMatch)
		}
	}
}
