package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/conjunction-screener/internal/logging"
)

const (
	issLine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issLine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
	// Same orbit a little further along, under another catalog number.
	chaserLine1 = "1 25545U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	chaserLine2 = "2 25545  51.6459 115.9059 0001817  61.3028  35.9298 15.49370953257760"
)

func writeTLEs(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.tle")
	content := strings.Join([]string{"ISS", issLine1, issLine2, "CHASER", chaserLine1, chaserLine2, ""}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write TLE file: %v", err)
	}
	return path
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{
		"-tles", "x.tle",
		"-start", "2021-10-02T00:00:00Z",
		"-horizon", "3h",
		"-secondary", "1, 2",
		"-masked", "3",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if !opts.start.Equal(time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", opts.start)
	}
	if opts.horizon != 3*time.Hour || !opts.secondary["1"] || !opts.secondary["2"] || !opts.masked["3"] {
		t.Fatalf("unexpected options %+v", opts)
	}

	if _, err := parseFlags(nil); err == nil {
		t.Fatalf("expected an error without -tles")
	}
	if _, err := parseFlags([]string{"-tles", "x", "-start", "yesterday"}); err == nil {
		t.Fatalf("expected an error for a malformed -start")
	}
}

func TestRunWritesJSONLines(t *testing.T) {
	opts, err := parseFlags([]string{
		"-tles", writeTLEs(t),
		"-start", "2021-10-02T00:00:00Z",
		"-horizon", "3h",
		"-segment", "1m",
		"-interval", "10m",
		"-threshold", "50",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), opts, &out, logging.Noop()); err != nil {
		t.Fatalf("run: %v", err)
	}

	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var line reportLine
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			t.Fatalf("invalid JSON line %q: %v", sc.Text(), err)
		}
		if line.NoradI != "25544" || line.NoradJ != "25545" {
			t.Fatalf("unexpected pair %s/%s", line.NoradI, line.NoradJ)
		}
		if !(line.DCAKm < 50) {
			t.Fatalf("dca %v not below threshold", line.DCAKm)
		}
		if line.TCA.Before(opts.start) || line.TCA.After(opts.start.Add(3*time.Hour)) {
			t.Fatalf("tca %v outside the horizon", line.TCA)
		}
	}
}

func TestRunMaskedPairProducesNothing(t *testing.T) {
	opts, err := parseFlags([]string{
		"-tles", writeTLEs(t),
		"-start", "2021-10-02T00:00:00Z",
		"-horizon", "1h",
		"-threshold", "50",
		"-masked", "25545",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	var out bytes.Buffer
	if err := run(context.Background(), opts, &out, logging.Noop()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("masked object still produced reports: %s", out.String())
	}
}

func TestRunMissingFile(t *testing.T) {
	opts := options{tlePath: filepath.Join(t.TempDir(), "missing.tle"), horizon: time.Hour, segment: time.Minute, interval: time.Minute, threshold: 1}
	if err := run(context.Background(), opts, &bytes.Buffer{}, logging.Noop()); err == nil {
		t.Fatalf("expected an error for a missing TLE file")
	}
}
