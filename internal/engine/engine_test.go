package engine

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/config"
	"github.com/quillnote/core/internal/keyring"
	"github.com/quillnote/core/internal/logging"
	"github.com/quillnote/core/internal/models"
	"github.com/quillnote/core/internal/search"
	"github.com/quillnote/core/internal/store"
	"github.com/quillnote/core/internal/syncer"
	"github.com/quillnote/core/internal/syncer/httpapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// userDirectory is the piece of service state shared between the per-device
// fake remotes: accounts, verifiers and published wrapped keys.
type userDirectory struct {
	mu       sync.Mutex
	byName   map[string]*models.User
	verifier map[string][]byte
	wrapped  map[string][]byte // "resource/keyid/userid" -> wrapped key
}

func newUserDirectory() *userDirectory {
	return &userDirectory{
		byName:   make(map[string]*models.User),
		verifier: make(map[string][]byte),
		wrapped:  make(map[string][]byte),
	}
}

// fakeRemote simulates the service as seen from one device.
type fakeRemote struct {
	dir *userDirectory

	mu      sync.Mutex
	userID  string
	inbox   []*syncer.ChangeBatch
	outbox  []*syncer.PushItem
	uploads map[string][]byte
}

func (f *fakeRemote) Register(ctx context.Context, req *httpapi.RegisterRequest) (*httpapi.Session, error) {
	f.dir.mu.Lock()
	defer f.dir.mu.Unlock()
	if _, ok := f.dir.byName[req.Username]; ok {
		return nil, fmt.Errorf("%w: username %s", common.ErrAlreadyExists, req.Username)
	}
	user := &models.User{
		ID:            uuid.NewString(),
		Username:      req.Username,
		PublicKey:     req.PublicKey,
		EncPrivateKey: req.EncPrivateKey,
		PrivKeyNonce:  req.PrivKeyNonce,
		PrivKeyMAC:    req.PrivKeyMAC,
		Salt:          req.Salt,
	}
	f.dir.byName[req.Username] = user
	f.dir.verifier[req.Username] = req.Verifier
	f.mu.Lock()
	f.userID = user.ID
	f.mu.Unlock()
	return &httpapi.Session{User: user}, nil
}

func (f *fakeRemote) Login(ctx context.Context, req *httpapi.LoginRequest) (*httpapi.Session, error) {
	f.dir.mu.Lock()
	defer f.dir.mu.Unlock()
	user, ok := f.dir.byName[req.Username]
	if !ok || !bytes.Equal(f.dir.verifier[req.Username], req.Verifier) {
		return nil, fmt.Errorf("%w: bad credentials for %s", common.ErrAuthenticationFailed, req.Username)
	}
	f.mu.Lock()
	f.userID = user.ID
	f.mu.Unlock()
	return &httpapi.Session{User: user}, nil
}

func (f *fakeRemote) GetSalt(ctx context.Context, username string) ([]byte, error) {
	f.dir.mu.Lock()
	defer f.dir.mu.Unlock()
	user, ok := f.dir.byName[username]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", common.ErrNotFound, username)
	}
	return user.Salt, nil
}

func (f *fakeRemote) FetchPublicKey(ctx context.Context, userID string) ([]byte, error) {
	f.dir.mu.Lock()
	defer f.dir.mu.Unlock()
	for _, user := range f.dir.byName {
		if user.ID == userID {
			return user.PublicKey, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", common.ErrNotFound, userID)
}

func (f *fakeRemote) PublishWrappedKeys(ctx context.Context, resourceID string, keys []keyring.WrappedKey) error {
	f.dir.mu.Lock()
	defer f.dir.mu.Unlock()
	for _, k := range keys {
		f.dir.wrapped[fmt.Sprintf("%s/%d/%s", resourceID, k.KeyID, k.UserID)] = k.Wrapped
	}
	return nil
}

func (f *fakeRemote) Poll(ctx context.Context, sinceCursor string) (*syncer.ChangeBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbox) == 0 {
		return &syncer.ChangeBatch{Cursor: sinceCursor}, nil
	}
	b := f.inbox[0]
	f.inbox = f.inbox[1:]
	return b, nil
}

func (f *fakeRemote) Push(ctx context.Context, items []*syncer.PushItem) ([]*syncer.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acks := make([]*syncer.Ack, 0, len(items))
	for _, item := range items {
		f.outbox = append(f.outbox, item)
		acks = append(acks, &syncer.Ack{
			ChangeID:   item.ChangeID,
			ResourceID: item.Envelope.ID,
			Version:    item.Envelope.Version,
			OK:         true,
		})
	}
	return acks, nil
}

func (f *fakeRemote) FetchWrappedKey(ctx context.Context, resourceID string, keyID int) ([]byte, error) {
	f.mu.Lock()
	userID := f.userID
	f.mu.Unlock()
	f.dir.mu.Lock()
	defer f.dir.mu.Unlock()
	w, ok := f.dir.wrapped[fmt.Sprintf("%s/%d/%s", resourceID, keyID, userID)]
	if !ok {
		return nil, fmt.Errorf("%w: no wrapped key for %s generation %d", common.ErrNotFound, resourceID, keyID)
	}
	return w, nil
}

func (f *fakeRemote) CreateBlob(ctx context.Context, size int64) (*httpapi.BlobSlot, error) {
	ref := uuid.NewString()
	return &httpapi.BlobSlot{BlobRef: ref, UploadURL: "mem://" + ref}, nil
}

func (f *fakeRemote) UploadBlob(ctx context.Context, uploadURL string, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[uploadURL] = append([]byte(nil), blob...)
	return nil
}

// pushedEnvelopes drains this device's outbox into a change batch another
// device can poll.
func (f *fakeRemote) pushedEnvelopes() []*models.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Envelope, 0, len(f.outbox))
	for _, item := range f.outbox {
		out = append(out, item.Envelope)
	}
	f.outbox = nil
	return out
}

func (f *fakeRemote) deliver(envs []*models.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = append(f.inbox, &syncer.ChangeBatch{Envelopes: envs, Cursor: "c"})
}

func (f *fakeRemote) outboxLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.outbox)
}

func testEngineConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.PollInterval = time.Hour
	cfg.NetTimeout = time.Second
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffCeiling = 10 * time.Millisecond
	return cfg
}

func newEngine(t *testing.T, dir *userDirectory) (*Engine, *fakeRemote) {
	t.Helper()
	remote := &fakeRemote{dir: dir}
	e := New(testEngineConfig(), remote, logging.NewNopLogger())
	e.openDB = func(ctx context.Context, path string) (store.Persistence, error) {
		return store.NewMemoryPersistence(), nil
	}
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	return e, remote
}

func TestJoinCreateSearchDelete(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, newUserDirectory())

	user, err := e.Join(ctx, "alice", "correct horse battery")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)

	space, err := e.CreateSpace(ctx, CreateSpaceCmd{Name: "personal"})
	require.NoError(t, err)

	board, err := e.CreateBoard(ctx, CreateBoardCmd{SpaceID: space.ID, Name: "ideas"})
	require.NoError(t, err)

	note, err := e.CreateNote(ctx, CreateNoteCmd{
		SpaceID:  space.ID,
		BoardIDs: []string{board.ID},
		Title:    "greeting",
		Body:     "hello world",
		Tags:     []string{"demo"},
	})
	require.NoError(t, err)

	got, err := e.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", got.Body)

	found, err := e.FindNotes(ctx, search.Query{Text: "hello"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, note.ID, found[0].ID)

	tags, err := e.TagsByFrequency(ctx, space.ID, nil, 0)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "demo", tags[0].Tag)

	require.NoError(t, e.DeleteNote(ctx, note.ID))
	found, err = e.FindNotes(ctx, search.Query{Text: "hello"})
	require.NoError(t, err)
	assert.Empty(t, found, "deleted notes leave the index")

	_, err = e.GetNote(ctx, note.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestJoin_ValidatesInput(t *testing.T) {
	e, _ := newEngine(t, newUserDirectory())
	_, err := e.Join(context.Background(), "al", "short")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestLogin_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	dir := newUserDirectory()

	e1, _ := newEngine(t, dir)
	_, err := e1.Join(ctx, "alice", "correct horse battery")
	require.NoError(t, err)

	e2, _ := newEngine(t, dir)
	_, err = e2.Login(ctx, "alice", "wrong horse battery!")
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)

	_, err = e2.Login(ctx, "alice", "correct horse battery")
	assert.NoError(t, err)
}

func TestOperationsRequireLogin(t *testing.T) {
	e, _ := newEngine(t, newUserDirectory())
	_, err := e.CreateSpace(context.Background(), CreateSpaceCmd{Name: "x"})
	assert.ErrorIs(t, err, common.ErrAuthenticationFailed)
}

func TestEditNote_PermissionAndValidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, newUserDirectory())
	_, err := e.Join(ctx, "alice", "correct horse battery")
	require.NoError(t, err)
	space, err := e.CreateSpace(ctx, CreateSpaceCmd{Name: "personal"})
	require.NoError(t, err)
	note, err := e.CreateNote(ctx, CreateNoteCmd{SpaceID: space.ID, Body: "v1"})
	require.NoError(t, err)

	edited, err := e.EditNote(ctx, EditNoteCmd{NoteID: note.ID, Body: "v2"})
	require.NoError(t, err)
	assert.Equal(t, "v2", edited.Body)

	_, err = e.EditNote(ctx, EditNoteCmd{NoteID: ""})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = e.CreateNote(ctx, CreateNoteCmd{SpaceID: space.ID, BoardIDs: []string{"nope"}})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

// TestSharedSpaceAccess walks the full sharing path across two devices: a
// note is unreadable for the second user until an invite is accepted, and
// revocation rotates the space key.
func TestSharedSpaceAccess(t *testing.T) {
	ctx := context.Background()
	dir := newUserDirectory()

	alice, aliceRemote := newEngine(t, dir)
	bob, bobRemote := newEngine(t, dir)

	_, err := alice.Join(ctx, "alice", "correct horse battery")
	require.NoError(t, err)
	bobUser, err := bob.Join(ctx, "bob", "hunter2 hunter2 ok")
	require.NoError(t, err)

	space, err := alice.CreateSpace(ctx, CreateSpaceCmd{Name: "shared"})
	require.NoError(t, err)
	note, err := alice.CreateNote(ctx, CreateNoteCmd{SpaceID: space.ID, Body: "hello"})
	require.NoError(t, err)

	// Alice pushes her changes to the service.
	require.NoError(t, alice.ForceSync(ctx))
	require.Eventually(t, func() bool { return aliceRemote.outboxLen() >= 2 },
		2*time.Second, 5*time.Millisecond)
	published := aliceRemote.pushedEnvelopes()

	// Without membership, the delivered content is rejected on Bob's device.
	bobRemote.deliver(published)
	require.NoError(t, bob.ForceSync(ctx))
	time.Sleep(100 * time.Millisecond)
	_, err = bob.GetNote(ctx, note.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// Alice invites Bob; the invite reaches Bob through sync.
	invite, err := alice.InviteUser(ctx, InviteCmd{SpaceID: space.ID, InviteeID: bobUser.ID, Role: models.RoleEditor})
	require.NoError(t, err)
	require.NoError(t, alice.ForceSync(ctx))
	require.Eventually(t, func() bool { return aliceRemote.outboxLen() >= 1 },
		2*time.Second, 5*time.Millisecond)
	bobRemote.deliver(aliceRemote.pushedEnvelopes())
	require.NoError(t, bob.ForceSync(ctx))
	require.Eventually(t, func() bool {
		_, err := bob.AcceptInvite(ctx, invite.ID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	// With key and membership in place, the space content opens.
	bobRemote.deliver(published)
	require.NoError(t, bob.ForceSync(ctx))
	require.Eventually(t, func() bool {
		got, err := bob.GetNote(ctx, note.ID)
		return err == nil && got.Body == "hello"
	}, 2*time.Second, 10*time.Millisecond)

	// Bob's membership record reaches Alice's device before she can revoke.
	require.NoError(t, bob.ForceSync(ctx))
	require.Eventually(t, func() bool { return bobRemote.outboxLen() >= 1 },
		2*time.Second, 5*time.Millisecond)
	aliceRemote.deliver(bobRemote.pushedEnvelopes())
	require.NoError(t, alice.ForceSync(ctx))

	// Revoking Bob rotates the space key.
	require.Eventually(t, func() bool {
		return alice.RevokeMember(ctx, space.ID, bobUser.ID) == nil
	}, 2*time.Second, 10*time.Millisecond)
	profile, err := alice.Profile(ctx)
	require.NoError(t, err)
	require.Len(t, profile.Spaces, 1)
	assert.Equal(t, 2, profile.Spaces[0].KeyID)
}

func TestAddFile_SealsAndUploads(t *testing.T) {
	ctx := context.Background()
	e, remote := newEngine(t, newUserDirectory())
	_, err := e.Join(ctx, "alice", "correct horse battery")
	require.NoError(t, err)
	space, err := e.CreateSpace(ctx, CreateSpaceCmd{Name: "personal"})
	require.NoError(t, err)
	note, err := e.CreateNote(ctx, CreateNoteCmd{SpaceID: space.ID, Body: "with attachment"})
	require.NoError(t, err)

	data := []byte("pdf bytes here")
	file, err := e.AddFile(ctx, AddFileCmd{NoteID: note.ID, Data: data})
	require.NoError(t, err)
	assert.Equal(t, note.ID, file.NoteID)
	assert.Equal(t, int64(len(data)), file.Size)
	assert.Equal(t, 1, file.KeyID)
	assert.NotEmpty(t, file.Nonce)
	assert.NotEmpty(t, file.MAC)

	remote.mu.Lock()
	uploaded, ok := remote.uploads["mem://"+file.BlobRef]
	remote.mu.Unlock()
	require.True(t, ok, "blob must land in the reserved slot")
	assert.NotEqual(t, data, uploaded, "only ciphertext leaves the engine")

	_, err = e.AddFile(ctx, AddFileCmd{NoteID: "missing", Data: data})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestProfileAndWipe(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, newUserDirectory())
	_, err := e.Join(ctx, "alice", "correct horse battery")
	require.NoError(t, err)

	space, err := e.CreateSpace(ctx, CreateSpaceCmd{Name: "personal"})
	require.NoError(t, err)
	_, err = e.CreateNote(ctx, CreateNoteCmd{SpaceID: space.ID, Body: "hello"})
	require.NoError(t, err)

	p, err := e.Profile(ctx)
	require.NoError(t, err)
	require.Len(t, p.Spaces, 1)
	assert.Positive(t, p.PendingChanges)

	require.NoError(t, e.WipeLocalData(ctx))

	p, err = e.Profile(ctx)
	require.NoError(t, err)
	assert.Empty(t, p.Spaces)
	found, err := e.FindNotes(ctx, search.Query{Text: "hello"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestPauseResumeSync(t *testing.T) {
	ctx := context.Background()
	e, remote := newEngine(t, newUserDirectory())
	_, err := e.Join(ctx, "alice", "correct horse battery")
	require.NoError(t, err)

	require.NoError(t, e.PauseSync(ctx))
	space, err := e.CreateSpace(ctx, CreateSpaceCmd{Name: "personal"})
	require.NoError(t, err)
	_ = space
	require.NoError(t, e.ForceSync(ctx))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, remote.outboxLen(), "paused sync must not push")

	require.NoError(t, e.ResumeSync(ctx))
	require.NoError(t, e.ForceSync(ctx))
	require.Eventually(t, func() bool { return remote.outboxLen() >= 1 },
		2*time.Second, 5*time.Millisecond)
}
