package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	NewSpace(ctx context.Context) error
	Spaces(ctx context.Context) error
	Use(ctx context.Context, spaceID string) error
	AddNote(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context, noteID string) error
	Find(ctx context.Context, text string) error
	Tags(ctx context.Context) error
	Attach(ctx context.Context) error
	Invite(ctx context.Context) error
	Accept(ctx context.Context, inviteID string) error
	Sync(ctx context.Context) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Status(ctx context.Context) error
	Wipe(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the Quillnote CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help           — show available commands
//	  - register       — create an account
//	  - login          — authenticate
//	  - exit | quit    — leave the program
//
//	Logged in:
//	  - help           — show available commands
//	  - newspace       — create a space
//	  - spaces         — list spaces
//	  - use <id>       — select the working space
//	  - addnote        — add a note to the working space
//	  - list           — list notes in the working space
//	  - show <id>      — print a single note
//	  - find <text>    — full-text search across readable notes
//	  - tags           — tag frequency for the working space
//	  - attach         — attach a local file to a note
//	  - invite         — invite another user to the working space
//	  - accept <id>    — accept a pending invite
//	  - sync           — trigger a sync cycle now
//	  - pause | resume — suspend or restore background sync
//	  - status         — session and sync state
//	  - wipe           — erase the local cache
//	  - exit | quit    — leave the program
//
// Any errors returned by command handlers are ignored here; handlers should
// log their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("qn> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: newspace, spaces, use, addnote, (l)ist, show, find, tags, attach, invite, accept, sync, pause, resume, status, wipe, exit")
			} else {
				printlnFn("Available commands: register, login, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "newspace":
			_ = a.NewSpace(ctx)

		case "spaces":
			_ = a.Spaces(ctx)

		case "use":
			if len(args) == 0 {
				printlnFn("Usage: use <space-id>")
				continue
			}
			_ = a.Use(ctx, args[0])

		case "addnote":
			_ = a.AddNote(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "show":
			if len(args) == 0 {
				printlnFn("Usage: show <note-id>")
				continue
			}
			_ = a.Show(ctx, args[0])

		case "find":
			if len(args) == 0 {
				printlnFn("Usage: find <text>")
				continue
			}
			_ = a.Find(ctx, strings.Join(args, " "))

		case "tags":
			_ = a.Tags(ctx)

		case "attach":
			_ = a.Attach(ctx)

		case "invite":
			_ = a.Invite(ctx)

		case "accept":
			if len(args) == 0 {
				printlnFn("Usage: accept <invite-id>")
				continue
			}
			_ = a.Accept(ctx, args[0])

		case "sync":
			_ = a.Sync(ctx)

		case "pause":
			_ = a.Pause(ctx)

		case "resume":
			_ = a.Resume(ctx)

		case "status":
			_ = a.Status(ctx)

		case "wipe":
			_ = a.Wipe(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
