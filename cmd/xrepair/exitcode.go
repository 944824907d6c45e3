package main

import (
	"github.com/xrepair/xrepair/internal/xferrors"
)

// Exit codes per spec.md §6: "0 clean; 1 repaired or upgraded; 2 unrepairable or aborted by user;
// 4 usage error."
const (
	exitClean        = 0
	exitRepaired     = 1
	exitUnrepairable = 2
	exitUsageError   = 4
)

// cliResult carries a command's outcome exit code alongside whatever diagnostic message
// accompanies it, so main's rootCmd.Execute() can report a code finer-grained than the teacher's
// plain os.Exit(1) in cmd/vorteil/main.go.
type cliResult struct {
	code int
	err  error
}

func (r *cliResult) Error() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

func (r *cliResult) Unwrap() error { return r.err }

func abortedResult(err error) error { return &cliResult{code: exitUnrepairable, err: err} }
func repairedResult() error         { return &cliResult{code: exitRepaired} }
func cleanResult() error            { return &cliResult{code: exitClean} }
func usageResult(err error) error   { return &cliResult{code: exitUsageError, err: err} }

// exitCodeFor maps whatever rootCmd.Execute() returned to a process exit code: a *cliResult
// carries its own code (cobra's flag-parsing failures arrive as usage results, wrapped by
// commandInit); an xferrors KindInvalidArgument is a usage error; any other error is
// unrepairable; nil is clean.
func exitCodeFor(err error) int {
	if err == nil {
		return exitClean
	}
	var res *cliResult
	if as, ok := err.(*cliResult); ok {
		res = as
	}
	if res != nil {
		return res.code
	}
	if xferrors.Is(err, xferrors.KindInvalidArgument) {
		return exitUsageError
	}
	return exitUnrepairable
}
