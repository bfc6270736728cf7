package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/models"
	"github.com/quillnote/core/internal/search"
)

// CreateSpaceCmd creates a top-level container with its own key.
type CreateSpaceCmd struct {
	Name string `validate:"required,max=128"`
}

// CreateBoardCmd creates a board inside a space.
type CreateBoardCmd struct {
	SpaceID string `validate:"required"`
	Name    string `validate:"required,max=128"`
}

// CreateNoteCmd creates a note, optionally filed on boards.
type CreateNoteCmd struct {
	SpaceID  string `validate:"required"`
	BoardIDs []string
	Title    string   `validate:"max=256"`
	Body     string   `validate:"max=1048576"`
	Tags     []string `validate:"dive,required,max=64"`
}

// EditNoteCmd replaces a note's content wholesale; sync conflicts are
// resolved per item, not per field.
type EditNoteCmd struct {
	NoteID   string `validate:"required"`
	BoardIDs []string
	Title    string   `validate:"max=256"`
	Body     string   `validate:"max=1048576"`
	Tags     []string `validate:"dive,required,max=64"`
}

// AddFileCmd attaches binary data to a note. The data is sealed under the
// space key before it leaves the engine.
type AddFileCmd struct {
	NoteID string `validate:"required"`
	Data   []byte `validate:"required,max=33554432"`
}

// CreateSpace creates a space owned by the logged-in user, with a fresh
// generation-one content key.
func (e *Engine) CreateSpace(ctx context.Context, cmd CreateSpaceCmd) (*models.Space, error) {
	user, err := e.session()
	if err != nil {
		return nil, err
	}
	if err := e.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	space := &models.Space{
		ID:        uuid.NewString(),
		OwnerID:   user.ID,
		Name:      cmd.Name,
		KeyID:     1,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := e.ring.CreateKey(space.ID); err != nil {
		return nil, err
	}
	if _, err := e.store.ApplyLocal(ctx, models.TypeSpace, space.ID, space.ID, models.OpCreate, space); err != nil {
		return nil, err
	}
	return space, nil
}

// DeleteSpace removes a space and everything in it. Owner only.
func (e *Engine) DeleteSpace(ctx context.Context, spaceID string) error {
	user, err := e.session()
	if err != nil {
		return err
	}
	if err := e.perm.Authorize(user.ID, spaceID, models.ActionOwn); err != nil {
		return err
	}

	// Children first, so a crash mid-cascade never leaves orphans under a
	// deleted space.
	order := []models.ResourceType{
		models.TypeFile, models.TypeNote, models.TypeBoard,
		models.TypeInvite, models.TypeMember,
	}
	for _, typ := range order {
		for _, item := range e.store.ListType(typ) {
			if item.SpaceID != spaceID {
				continue
			}
			if _, err := e.store.ApplyLocal(ctx, typ, item.ID, spaceID, models.OpDelete, nil); err != nil {
				return err
			}
		}
	}
	_, err = e.store.ApplyLocal(ctx, models.TypeSpace, spaceID, spaceID, models.OpDelete, nil)
	return err
}

// CreateBoard adds a board to a space.
func (e *Engine) CreateBoard(ctx context.Context, cmd CreateBoardCmd) (*models.Board, error) {
	user, err := e.session()
	if err != nil {
		return nil, err
	}
	if err := e.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if err := e.perm.Authorize(user.ID, cmd.SpaceID, models.ActionEdit); err != nil {
		return nil, err
	}

	board := &models.Board{ID: uuid.NewString(), SpaceID: cmd.SpaceID, Name: cmd.Name}
	if _, err := e.store.ApplyLocal(ctx, models.TypeBoard, board.ID, cmd.SpaceID, models.OpCreate, board); err != nil {
		return nil, err
	}
	return board, nil
}

// DeleteBoard removes a board and unfiles it from every note that referenced
// it; the notes themselves survive.
func (e *Engine) DeleteBoard(ctx context.Context, boardID string) error {
	user, err := e.session()
	if err != nil {
		return err
	}
	item, err := e.store.Get(models.TypeBoard, boardID)
	if err != nil {
		return err
	}
	if err := e.perm.Authorize(user.ID, boardID, models.ActionManage); err != nil {
		return err
	}

	for _, noteItem := range e.store.ListType(models.TypeNote) {
		note, ok := noteItem.Payload.(*models.Note)
		if !ok || !containsString(note.BoardIDs, boardID) {
			continue
		}
		updated := *note
		updated.BoardIDs = removeString(note.BoardIDs, boardID)
		if _, err := e.store.ApplyLocal(ctx, models.TypeNote, note.ID, note.SpaceID, models.OpUpdate, &updated); err != nil {
			return err
		}
	}

	_, err = e.store.ApplyLocal(ctx, models.TypeBoard, boardID, item.SpaceID, models.OpDelete, nil)
	return err
}

// CreateNote creates a note in a space.
func (e *Engine) CreateNote(ctx context.Context, cmd CreateNoteCmd) (*models.Note, error) {
	user, err := e.session()
	if err != nil {
		return nil, err
	}
	if err := e.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if err := e.perm.Authorize(user.ID, cmd.SpaceID, models.ActionEdit); err != nil {
		return nil, err
	}
	if err := e.checkBoards(cmd.SpaceID, cmd.BoardIDs); err != nil {
		return nil, err
	}

	note := &models.Note{
		ID:       uuid.NewString(),
		SpaceID:  cmd.SpaceID,
		BoardIDs: cmd.BoardIDs,
		Title:    cmd.Title,
		Body:     cmd.Body,
		Tags:     cmd.Tags,
	}
	if _, err := e.store.ApplyLocal(ctx, models.TypeNote, note.ID, cmd.SpaceID, models.OpCreate, note); err != nil {
		return nil, err
	}
	return note, nil
}

// EditNote replaces a note's content.
func (e *Engine) EditNote(ctx context.Context, cmd EditNoteCmd) (*models.Note, error) {
	user, err := e.session()
	if err != nil {
		return nil, err
	}
	if err := e.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	item, err := e.store.Get(models.TypeNote, cmd.NoteID)
	if err != nil {
		return nil, err
	}
	old, ok := item.Payload.(*models.Note)
	if !ok || item.Deleted {
		return nil, fmt.Errorf("%w: note %s", common.ErrNotFound, cmd.NoteID)
	}
	if err := e.perm.Authorize(user.ID, cmd.NoteID, models.ActionEdit); err != nil {
		return nil, err
	}
	if err := e.checkBoards(old.SpaceID, cmd.BoardIDs); err != nil {
		return nil, err
	}

	note := &models.Note{
		ID:       cmd.NoteID,
		SpaceID:  old.SpaceID,
		BoardIDs: cmd.BoardIDs,
		Title:    cmd.Title,
		Body:     cmd.Body,
		Tags:     cmd.Tags,
	}
	if _, err := e.store.ApplyLocal(ctx, models.TypeNote, note.ID, note.SpaceID, models.OpUpdate, note); err != nil {
		return nil, err
	}
	return note, nil
}

// DeleteNote tombstones a note and its file attachments.
func (e *Engine) DeleteNote(ctx context.Context, noteID string) error {
	user, err := e.session()
	if err != nil {
		return err
	}
	item, err := e.store.Get(models.TypeNote, noteID)
	if err != nil {
		return err
	}
	if err := e.perm.Authorize(user.ID, noteID, models.ActionManage); err != nil {
		return err
	}

	for _, fileItem := range e.store.ListType(models.TypeFile) {
		file, ok := fileItem.Payload.(*models.File)
		if !ok || file.NoteID != noteID {
			continue
		}
		if _, err := e.store.ApplyLocal(ctx, models.TypeFile, file.ID, file.SpaceID, models.OpDelete, nil); err != nil {
			return err
		}
	}
	_, err = e.store.ApplyLocal(ctx, models.TypeNote, noteID, item.SpaceID, models.OpDelete, nil)
	return err
}

// GetNote returns a note the user may read.
func (e *Engine) GetNote(ctx context.Context, noteID string) (*models.Note, error) {
	user, err := e.session()
	if err != nil {
		return nil, err
	}
	item, err := e.store.Get(models.TypeNote, noteID)
	if err != nil {
		return nil, err
	}
	note, ok := item.Payload.(*models.Note)
	if !ok || item.Deleted {
		return nil, fmt.Errorf("%w: note %s", common.ErrNotFound, noteID)
	}
	if err := e.perm.Authorize(user.ID, noteID, models.ActionRead); err != nil {
		return nil, err
	}
	return note, nil
}

// ListNotes returns the readable notes of a space.
func (e *Engine) ListNotes(ctx context.Context, spaceID string) ([]*models.Note, error) {
	user, err := e.session()
	if err != nil {
		return nil, err
	}
	if err := e.perm.Authorize(user.ID, spaceID, models.ActionRead); err != nil {
		return nil, err
	}

	var out []*models.Note
	for _, item := range e.store.ListType(models.TypeNote) {
		if item.SpaceID != spaceID {
			continue
		}
		if note, ok := item.Payload.(*models.Note); ok {
			out = append(out, note)
		}
	}
	return out, nil
}

// AddFile seals an attachment under the space key, uploads the blob to a
// reserved slot, and queues the file record. The service only ever sees
// ciphertext.
func (e *Engine) AddFile(ctx context.Context, cmd AddFileCmd) (*models.File, error) {
	user, err := e.session()
	if err != nil {
		return nil, err
	}
	if err := e.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	item, err := e.store.Get(models.TypeNote, cmd.NoteID)
	if err != nil {
		return nil, err
	}
	if err := e.perm.Authorize(user.ID, cmd.NoteID, models.ActionEdit); err != nil {
		return nil, err
	}

	keyID, key, err := e.ring.CurrentKey(item.SpaceID)
	if err != nil {
		return nil, err
	}
	nonce, sealed, mac, err := e.cipher.Encrypt(key, cmd.Data)
	if err != nil {
		return nil, err
	}

	slot, err := e.remote.CreateBlob(ctx, int64(len(sealed)))
	if err != nil {
		return nil, err
	}
	if err := e.remote.UploadBlob(ctx, slot.UploadURL, sealed); err != nil {
		return nil, err
	}

	file := &models.File{
		ID:      uuid.NewString(),
		NoteID:  cmd.NoteID,
		SpaceID: item.SpaceID,
		BlobRef: slot.BlobRef,
		Size:    int64(len(cmd.Data)),
		KeyID:   keyID,
		Nonce:   nonce,
		MAC:     mac,
	}
	if _, err := e.store.ApplyLocal(ctx, models.TypeFile, file.ID, file.SpaceID, models.OpCreate, file); err != nil {
		return nil, err
	}
	return file, nil
}

// FindNotes runs a full-text query. Index hits are re-checked against the
// permission engine before returning, so a membership revocation takes
// effect immediately even if the index still carries the note.
func (e *Engine) FindNotes(ctx context.Context, query search.Query) ([]*models.Note, error) {
	user, err := e.session()
	if err != nil {
		return nil, err
	}

	var out []*models.Note
	for _, id := range e.index.Find(query) {
		if e.perm.Authorize(user.ID, id, models.ActionRead) != nil {
			continue
		}
		item, err := e.store.Get(models.TypeNote, id)
		if err != nil || item.Deleted {
			continue
		}
		if note, ok := item.Payload.(*models.Note); ok {
			out = append(out, note)
		}
	}
	return out, nil
}

// TagsByFrequency returns the space's tags ordered by usage.
func (e *Engine) TagsByFrequency(ctx context.Context, spaceID string, boardIDs []string, limit int) ([]search.TagCount, error) {
	user, err := e.session()
	if err != nil {
		return nil, err
	}
	if err := e.perm.Authorize(user.ID, spaceID, models.ActionRead); err != nil {
		return nil, err
	}
	return e.index.TagsByFrequency(spaceID, boardIDs, limit), nil
}

// checkBoards verifies every referenced board exists and belongs to the
// note's space.
func (e *Engine) checkBoards(spaceID string, boardIDs []string) error {
	for _, id := range boardIDs {
		item, err := e.store.Get(models.TypeBoard, id)
		if err != nil || item.Deleted {
			return fmt.Errorf("%w: board %s", common.ErrNotFound, id)
		}
		if item.SpaceID != spaceID {
			return fmt.Errorf("%w: board %s belongs to another space", common.ErrValidation, id)
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
