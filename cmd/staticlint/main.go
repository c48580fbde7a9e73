// Command staticlint runs the project's static analysis: a selection of
// go/analysis passes, staticcheck and third-party analyzers, and the
// project's own analyzers, under one multichecker.
//
// Which staticcheck, simple and stylecheck checks run is read from
// staticlint.yaml (JSON works too) next to the binary:
//
//	checks:
//	  - SA*
//	  - S1000
//	  - ST1005
//
// A trailing "*" enables a whole family. Without the file every SA check runs.
package main

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gordonklaus/ineffassign/pkg/ineffassign"
	"github.com/gostaticanalysis/nilerr"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/httpresponse"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unreachable"
	"golang.org/x/tools/go/analysis/passes/unusedresult"
	"gopkg.in/yaml.v3"
	"honnef.co/go/tools/analysis/lint"
	"honnef.co/go/tools/simple"
	"honnef.co/go/tools/staticcheck"
	"honnef.co/go/tools/stylecheck"

	"github.com/patric-chuzhbe/smartmark/cmd/staticlint/ctxfirst"
	"github.com/patric-chuzhbe/smartmark/cmd/staticlint/noosexit"
)

const configFileName = `staticlint.yaml`

type configData struct {
	Checks []string `yaml:"checks"`
}

var defaultConfig = configData{Checks: []string{"SA*"}}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	checks := []*analysis.Analyzer{
		copylock.Analyzer,
		httpresponse.Analyzer,
		loopclosure.Analyzer,
		lostcancel.Analyzer,
		printf.Analyzer,
		structtag.Analyzer,
		unmarshal.Analyzer,
		unreachable.Analyzer,
		unusedresult.Analyzer,

		ineffassign.Analyzer,
		nilerr.Analyzer,

		noosexit.Analyzer,
		ctxfirst.Analyzer,
	}

	checks = append(checks, selectAnalyzers(cfg.Checks, staticcheck.Analyzers, simple.Analyzers, stylecheck.Analyzers)...)

	multichecker.Main(checks...)
}

func loadConfig() (configData, error) {
	executable, err := os.Executable()
	if err != nil {
		return configData{}, err
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(executable), configFileName))
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig, nil
	}
	if err != nil {
		return configData{}, err
	}

	var cfg configData
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return configData{}, err
	}

	return cfg, nil
}

func selectAnalyzers(patterns []string, sets ...[]*lint.Analyzer) []*analysis.Analyzer {
	var result []*analysis.Analyzer
	for _, set := range sets {
		for _, candidate := range set {
			if enabled(patterns, candidate.Analyzer.Name) {
				result = append(result, candidate.Analyzer)
			}
		}
	}

	return result
}

func enabled(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if pattern == name {
			return true
		}
	}

	return false
}
