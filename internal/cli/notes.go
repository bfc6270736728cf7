package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/quillnote/core/internal/engine"
	"github.com/quillnote/core/internal/search"
)

// NewSpace prompts for a name and creates a space, making it the working
// space.
func (a *App) NewSpace(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Space name", os.Stdout)
	if err != nil {
		return err
	}
	space, err := a.engine.CreateSpace(ctx, engine.CreateSpaceCmd{Name: name})
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	a.spaceID = space.ID
	fmt.Printf("Created space %s (%s)\n", space.Name, space.ID)
	return nil
}

// Spaces lists the spaces the user can read.
func (a *App) Spaces(ctx context.Context) error {
	profile, err := a.engine.Profile(ctx)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	if len(profile.Spaces) == 0 {
		fmt.Println("No spaces yet. Try 'newspace'.")
		return nil
	}
	for _, s := range profile.Spaces {
		marker := "  "
		if s.ID == a.spaceID {
			marker = "* "
		}
		fmt.Printf("%s%s  %s\n", marker, s.ID, s.Name)
	}
	return nil
}

// Use selects the working space for note commands.
func (a *App) Use(ctx context.Context, spaceID string) error {
	profile, err := a.engine.Profile(ctx)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	for _, s := range profile.Spaces {
		if s.ID == spaceID {
			a.spaceID = spaceID
			fmt.Printf("Using space %s\n", s.Name)
			return nil
		}
	}
	fmt.Println("Unknown space:", spaceID)
	return nil
}

// requireSpace guards commands that need a working space.
func (a *App) requireSpace() bool {
	if a.spaceID == "" {
		fmt.Println("No space selected. Use 'newspace' or 'use <space-id>' first.")
		return false
	}
	return true
}

// AddNote prompts for a title, body and tags and creates a note in the
// working space.
func (a *App) AddNote(ctx context.Context) error {
	if !a.requireSpace() {
		return nil
	}
	title, err := getSimpleText(a.reader, "Title", os.Stdout)
	if err != nil {
		return err
	}
	body, err := GetMultiline(a.reader, "Body", os.Stdout)
	if err != nil {
		return err
	}
	tags, err := GetTags(a.reader, os.Stdout)
	if err != nil {
		return err
	}

	note, err := a.engine.CreateNote(ctx, engine.CreateNoteCmd{
		SpaceID: a.spaceID,
		Title:   title,
		Body:    body,
		Tags:    tags,
	})
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	fmt.Printf("Created note %s\n", note.ID)
	return nil
}

// List prints the notes of the working space.
func (a *App) List(ctx context.Context) error {
	if !a.requireSpace() {
		return nil
	}
	notes, err := a.engine.ListNotes(ctx, a.spaceID)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	if len(notes) == 0 {
		fmt.Println("No notes in this space.")
		return nil
	}
	for _, n := range notes {
		fmt.Printf("%s  %s\n", n.ID, n.Title)
	}
	return nil
}

// Show prints a single note in full.
func (a *App) Show(ctx context.Context, noteID string) error {
	note, err := a.engine.GetNote(ctx, noteID)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	fmt.Printf("# %s\n%s\n", note.Title, note.Body)
	if len(note.Tags) > 0 {
		fmt.Println("Tags:", note.Tags)
	}
	return nil
}

// Find runs a full-text search across every note the user can read.
func (a *App) Find(ctx context.Context, text string) error {
	notes, err := a.engine.FindNotes(ctx, search.Query{Text: text, SpaceID: a.spaceID})
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	if len(notes) == 0 {
		fmt.Println("No matches.")
		return nil
	}
	for _, n := range notes {
		fmt.Printf("%s  %s\n", n.ID, n.Title)
	}
	return nil
}

// Tags prints the working space's tags ordered by frequency.
func (a *App) Tags(ctx context.Context) error {
	if !a.requireSpace() {
		return nil
	}
	tags, err := a.engine.TagsByFrequency(ctx, a.spaceID, nil, 0)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	for _, tc := range tags {
		fmt.Printf("%4d  %s\n", tc.Count, tc.Tag)
	}
	return nil
}

// Attach prompts for a note ID and a local file path and attaches the sealed
// file contents to the note.
func (a *App) Attach(ctx context.Context) error {
	noteID, err := getSimpleText(a.reader, "Note ID", os.Stdout)
	if err != nil {
		return err
	}
	path, err := getSimpleText(a.reader, "File path", os.Stdout)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println(err.Error())
		return err
	}

	file, err := a.engine.AddFile(ctx, engine.AddFileCmd{NoteID: noteID, Data: data})
	if err != nil {
		fmt.Println(err.Error())
		return err
	}
	fmt.Printf("Attached %s (%d bytes) as %s\n", path, file.Size, file.ID)
	return nil
}
