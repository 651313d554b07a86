// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command no_setenv_in_tests reports environment mutation in test files.
//
//	(cd tools/linters && go build -o ../../bin/no_setenv_in_tests .)
//	bin/no_setenv_in_tests ./...
package main

import "golang.org/x/tools/go/analysis/singlechecker"

func main() { singlechecker.Main(Analyzer) }
