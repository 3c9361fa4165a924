package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/node"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

type traceHeader struct {
	Type                  string `json:"type"`
	SchemaVersion         int    `json:"schema_version"`
	GeneratedAtUTC        string `json:"generated_at_utc"`
	RepoCommit            string `json:"repo_commit"`
	GoVersion             string `json:"go_version"`
	FixturesDigestSHA3256 string `json:"fixtures_digest_sha3_256"`
}

type traceEntry struct {
	Type     string         `json:"type"`
	Gate     string         `json:"gate"`
	VectorID string         `json:"vector_id"`
	Op       string         `json:"op"`
	Ok       bool           `json:"ok"`
	Err      string         `json:"err"`
	Match    bool           `json:"match"`
	Outputs  map[string]any `json:"outputs"`
}

type lockFixture struct {
	Gate    string       `json:"gate"`
	Vectors []lockVector `json:"vectors"`
}

type lockVector struct {
	ID           string          `json:"id"`
	Op           string          `json:"op"`
	Tx           json.RawMessage `json:"tx"`
	Sighash      string          `json:"sighash"`
	ExpectOk     bool            `json:"expect_ok"`
	ExpectErr    string          `json:"expect_err"`
	ExpectExit   *int8           `json:"expect_exit"`
	ExpectCycles *uint64         `json:"expect_cycles"`
}

// traceSummary counts replayed vectors; Mismatches names every vector whose
// outcome differs from the fixture.
type traceSummary struct {
	Entries    int
	Mismatches []string
}

func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return "UNKNOWN"
	}
	return strings.TrimSpace(string(out))
}

func listFixtureNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matched, err := filepath.Match("CV-*.json", entry.Name())
		if err != nil {
			return nil, err
		}
		if matched {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func readFixtureFile(dir, name string) ([]byte, error) {
	return fs.ReadFile(os.DirFS(dir), name)
}

func digestFixtures(dir string) (string, error) {
	names, err := listFixtureNames(dir)
	if err != nil {
		return "", err
	}
	sum := sha3.New256()
	for _, name := range names {
		b, err := readFixtureFile(dir, name)
		if err != nil {
			return "", err
		}
		_, _ = sum.Write([]byte(name))
		_, _ = sum.Write([]byte{0})
		_, _ = sum.Write(b)
		_, _ = sum.Write([]byte{0})
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func lockErrString(err error) string {
	if err == nil {
		return ""
	}
	if code, ok := consensus.CodeOf(err); ok {
		return string(code)
	}
	return err.Error()
}

// runTrace replays every CV-*.json gate in dir and writes a JSONL trace to w:
// one header line, then one entry per vector.
func runTrace(dir string, cfg node.Config, log *zap.Logger, w io.Writer) (*traceSummary, error) {
	digest, err := digestFixtures(dir)
	if err != nil {
		return nil, fmt.Errorf("fixtures digest: %w", err)
	}
	hdr := traceHeader{
		Type:                  "header",
		SchemaVersion:         1,
		GeneratedAtUTC:        time.Now().UTC().Format(time.RFC3339Nano),
		RepoCommit:            gitCommit(),
		GoVersion:             runtime.Version(),
		FixturesDigestSHA3256: digest,
	}
	if err := writeJSON(w, hdr); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	names, err := listFixtureNames(dir)
	if err != nil {
		return nil, fmt.Errorf("list fixtures: %w", err)
	}
	sum := &traceSummary{}
	for _, name := range names {
		b, err := readFixtureFile(dir, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Join(dir, name), err)
		}
		var fx lockFixture
		if err := json.Unmarshal(b, &fx); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", filepath.Join(dir, name), err)
		}
		for _, v := range fx.Vectors {
			e := replayVector(cfg, log, fx.Gate, v)
			if err := writeJSON(w, e); err != nil {
				return nil, fmt.Errorf("write entry: %w", err)
			}
			sum.Entries++
			if !e.Match {
				sum.Mismatches = append(sum.Mismatches, fx.Gate+"/"+v.ID)
				log.Warn("vector mismatch", zap.String("gate", fx.Gate), zap.String("vector", v.ID), zap.String("err", e.Err))
			}
		}
	}
	return sum, nil
}

func replayVector(cfg node.Config, log *zap.Logger, gate string, v lockVector) traceEntry {
	e := traceEntry{Type: "entry", Gate: gate, VectorID: v.ID, Op: v.Op, Outputs: map[string]any{}}
	if v.Op != "verify" {
		e.Err = "unsupported op"
		return e
	}
	m, err := node.ParseMockTransaction(v.Tx)
	if err != nil {
		e.Err = err.Error()
		return e
	}
	e.Match = true
	if v.Sighash != "" {
		msg, _, err := node.SigningMessage(m, 0)
		got := hex.EncodeToString(msg[:])
		e.Outputs["sighash"] = got
		if err != nil || got != v.Sighash {
			e.Match = false
		}
	}
	report, verr := node.VerifyMockTransaction(cfg, log, m)
	e.Ok = verr == nil
	e.Err = lockErrString(verr)
	if report == nil {
		e.Match = false
		return e
	}
	e.Outputs["cycles"] = report.Cycles
	e.Outputs["exit"] = consensus.ExitCode(verr)

	if e.Ok != v.ExpectOk || e.Err != v.ExpectErr {
		e.Match = false
	}
	if v.ExpectExit != nil && *v.ExpectExit != consensus.ExitCode(verr) {
		e.Match = false
	}
	if v.ExpectCycles != nil && *v.ExpectCycles != report.Cycles {
		e.Match = false
	}
	return e
}
