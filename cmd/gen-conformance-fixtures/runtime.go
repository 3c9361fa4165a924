package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/node"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// The generator writes the combine-lock reference scenarios as a conformance
// gate. Each vector carries the full mock transaction together with the
// outcome the verifier produced when the vector was generated; a scenario
// whose outcome differs from its declared expectation aborts generation.

const gateName = "CV-COMBINE-LOCK"

func newGeneratorCommand() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:           "gen-conformance-fixtures",
		Short:         "Regenerate the combine-lock conformance fixtures",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				root, err := repoRootFromGoModule()
				if err != nil {
					return fmt.Errorf("repo root: %w", err)
				}
				outDir = filepath.Join(root, "conformance", "fixtures")
			}
			path, err := generate(outDir, zap.NewNop())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok: wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "fixture directory (default: <repo>/conformance/fixtures)")
	return cmd
}

type fixtureFile struct {
	Gate    string           `json:"gate"`
	Vectors []map[string]any `json:"vectors"`
}

// generate builds every scenario, checks it against its expectation and
// writes the gate file into dir.
func generate(dir string, log *zap.Logger) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", err
	}
	cfg := node.DefaultConfig()
	f := &fixtureFile{Gate: gateName}
	for _, name := range node.ScenarioNames() {
		sc, err := node.BuildScenario(name)
		if err != nil {
			return "", err
		}
		v, err := scenarioVector(cfg, log, sc)
		if err != nil {
			return "", fmt.Errorf("scenario %s: %w", name, err)
		}
		f.Vectors = append(f.Vectors, v)
	}
	path := filepath.Join(dir, gateName+".json")
	if err := writeFixture(path, f); err != nil {
		return "", err
	}
	return path, nil
}

func scenarioVector(cfg node.Config, log *zap.Logger, sc *node.Scenario) (map[string]any, error) {
	msg, _, err := node.SigningMessage(sc.Mock, 0)
	if err != nil {
		return nil, err
	}
	report, verr := node.VerifyMockTransaction(cfg, log, sc.Mock)
	code, _ := consensus.CodeOf(verr)
	if code != sc.Want {
		return nil, fmt.Errorf("verifier returned %q (err=%v), scenario expects %q", code, verr, sc.Want)
	}
	// Round-trip the mock through JSON so the vector holds plain values.
	raw, err := sc.Mock.Marshal()
	if err != nil {
		return nil, err
	}
	var tx map[string]any
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, err
	}
	v := map[string]any{
		"id":          "CL-" + sc.Name,
		"op":          "verify",
		"description": sc.Description,
		"tx":          tx,
		"sighash":     hex.EncodeToString(msg[:]),
		"expect_ok":   verr == nil,
	}
	if verr == nil {
		v["expect_cycles"] = report.Cycles
	} else {
		v["expect_err"] = string(code)
		v["expect_exit"] = consensus.ExitCode(verr)
	}
	return v, nil
}

func loadFixture(path string) (*fixtureFile, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- generator-controlled path.
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f fixtureFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &f, nil
}

func writeFixture(path string, f *fixtureFile) error {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	b = append(b, '\n')
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func repoRootFromGoModule() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	dir := wd
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		next := filepath.Dir(dir)
		if next == dir {
			break
		}
		dir = next
	}
	return "", fmt.Errorf("could not locate go.mod from %s", wd)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
