package main

import (
	"errors"
	"io"
	"os"
)

// Process exit codes.
const (
	exitOK       = 0
	exitRejected = 1
	exitCommand  = 2
)

// errRejected reports a verification that ran to completion and failed.
// The response has already been written.
var errRejected = errors.New("rejected")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	if opts.log != nil {
		_ = opts.log.Sync()
	}
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errRejected):
		return exitRejected
	default:
		writeResp(stdout, Response{Ok: false, Err: err.Error()})
		return exitCommand
	}
}
