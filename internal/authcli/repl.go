package authcli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. The real App
// satisfies it; tests can provide a stub.
type execIface interface {
	isSignedIn() bool
	SignUp(ctx context.Context) error
	Reset(ctx context.Context) error
	SignIn(ctx context.Context) error
	CheckEmail(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	SignOut(ctx context.Context) error
}

// runREPL reads a line, parses the first token as the command and
// dispatches to a. The loop exits on scanner EOF, context cancellation or
// when the user types "exit" or "quit". Command handlers print their own
// errors; only I/O failures bubble up and those end the loop too.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}

		printlnFn(fmt.Sprintf("auth> %s > ", statusFn()))

		if !scanner.Scan() {
			return
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		var err error

		switch cmd := parts[0]; cmd {
		case "help":
			if a.isSignedIn() {
				printlnFn("Available commands: whoami, signout, exit")
			} else {
				printlnFn("Available commands: signup, signin, reset, exists, whoami, exit")
			}

		case "signup":
			err = a.SignUp(ctx)

		case "signin", "login":
			err = a.SignIn(ctx)

		case "reset":
			err = a.Reset(ctx)

		case "exists":
			err = a.CheckEmail(ctx)

		case "whoami":
			err = a.WhoAmI(ctx)

		case "signout", "logout":
			err = a.SignOut(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			return
		}
	}
}
