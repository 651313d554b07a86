// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"go/ast"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
)

const doc = `no_setenv_in_tests: forbid process environment changes in test files

Configuration is injected, never read from a mutated environment. Tests build
their settings with config.LoadFromMap or testutil.LoadTestConfig and pass the
result to constructors, so they stay safe under t.Parallel.

Reported calls: os.Setenv, os.Unsetenv, os.Clearenv and the Setenv method of
testing.T, testing.B and testing.TB.`

var Analyzer = &analysis.Analyzer{
	Name: "no_setenv_in_tests",
	Doc:  doc,
	Run:  run,
}

var forbiddenOS = map[string]bool{
	"Setenv":   true,
	"Unsetenv": true,
	"Clearenv": true,
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		if !strings.HasSuffix(pass.Fset.Position(file.Package).Filename, "_test.go") {
			continue
		}
		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			fn, ok := pass.TypesInfo.Uses[sel.Sel].(*types.Func)
			if !ok || fn.Pkg() == nil {
				return true
			}

			switch path := fn.Pkg().Path(); {
			case path == "os" && forbiddenOS[fn.Name()]:
				pass.Reportf(call.Pos(), "os.%s is forbidden in test files: build the config with config.LoadFromMap or testutil.LoadTestConfig", fn.Name())
			case path == "testing" && fn.Name() == "Setenv":
				pass.Reportf(call.Pos(), "Setenv is forbidden in test files: build the config with config.LoadFromMap or testutil.LoadTestConfig")
			}
			return true
		})
	}
	return nil, nil
}
