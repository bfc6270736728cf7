// Package cli is the interactive terminal front end over the engine: a small
// REPL for account access, note taking, search, sharing and sync control.
// All cryptography and sync mechanics live below the engine boundary; this
// package only does prompts and printing.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/quillnote/core/internal/config"
	"github.com/quillnote/core/internal/engine"
)

type App struct {
	config *config.Config
	engine *engine.Engine
	reader *bufio.Reader

	userName string
	// spaceID is the working space commands operate on; set via "use".
	spaceID string
}

func NewApp(cfg *config.Config, e *engine.Engine) *App {
	return &App{config: cfg, engine: e, reader: bufio.NewReader(os.Stdin)}
}

func (a *App) isLoggedIn() bool {
	return a.userName != ""
}

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName
	}
	if a.spaceID != "" {
		s = s + " / " + shortID(a.spaceID)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// shortID truncates a UUID for prompt display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (a *App) Run(ctx context.Context) {
	fmt.Println("Welcome to Quillnote CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
	_ = a.engine.Shutdown(ctx)
}
