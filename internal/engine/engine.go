// Package engine assembles the full client core behind one instance object:
// account session, keyring, encrypted item store, search index, permission
// engine, sharing manager and the background sync worker. Every exported
// operation validates its input, authorizes it, and returns a sentinel error
// kind on failure; nothing panics across this boundary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/quillnote/core/internal/access"
	"github.com/quillnote/core/internal/collab"
	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/config"
	"github.com/quillnote/core/internal/cryptox"
	"github.com/quillnote/core/internal/keyring"
	"github.com/quillnote/core/internal/logging"
	"github.com/quillnote/core/internal/models"
	"github.com/quillnote/core/internal/search"
	"github.com/quillnote/core/internal/store"
	"github.com/quillnote/core/internal/syncer"
	"github.com/quillnote/core/internal/syncer/httpapi"
	"golang.org/x/sync/errgroup"
)

// Remote is everything the engine needs from the sync service. The HTTP API
// client implements it; tests substitute fakes.
type Remote interface {
	syncer.Transport
	collab.PublicKeyDirectory
	collab.KeyPublisher

	Register(ctx context.Context, req *httpapi.RegisterRequest) (*httpapi.Session, error)
	Login(ctx context.Context, req *httpapi.LoginRequest) (*httpapi.Session, error)
	GetSalt(ctx context.Context, username string) ([]byte, error)

	CreateBlob(ctx context.Context, size int64) (*httpapi.BlobSlot, error)
	UploadBlob(ctx context.Context, uploadURL string, blob []byte) error
}

// openPersistence builds the local envelope store; swapped in tests.
type openPersistence func(ctx context.Context, path string) (store.Persistence, error)

// Engine is the instance context object. One Engine serves one logged-in
// user; there is no process-global state.
type Engine struct {
	cfg      *config.Config
	remote   Remote
	log      logging.Logger
	validate *validator.Validate
	openDB   openPersistence

	mu        sync.Mutex
	user      *models.User
	masterKey []byte
	cipher    cryptox.Cipher
	ring      *keyring.Keyring
	persist   store.Persistence
	store     *store.Store
	index     *search.Index
	perm      *access.Engine
	collab    *collab.Manager
	syncer    *syncer.Syncer

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs a logged-out engine. Join or Login must succeed before any
// data operation.
func New(cfg *config.Config, remote Remote, log logging.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		remote:   remote,
		log:      log.With("component", "engine"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		openDB:   openSQLite,
	}
}

// session returns the logged-in state or ErrAuthenticationFailed.
func (e *Engine) session() (*models.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.user == nil {
		return nil, fmt.Errorf("%w: not logged in", common.ErrAuthenticationFailed)
	}
	return e.user, nil
}

// unlock wires all components for the authenticated user and starts the
// background workers. Called with a derived master key and the unsealed
// master private key.
func (e *Engine) unlock(ctx context.Context, user *models.User, masterKey, privateKey []byte) error {
	e.mu.Lock()
	if e.user != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: session already active", common.ErrAlreadyExists)
	}
	e.mu.Unlock()

	cipher, err := cryptox.CipherByName(e.cfg.CipherBackend)
	if err != nil {
		return err
	}

	ring := keyring.New(user.PublicKey, privateKey, e.log)
	sealer := store.NewSealer(ring, cipher)
	index := search.New()

	persist, err := e.openDB(ctx, e.cfg.DatabasePath)
	if err != nil {
		return err
	}

	st := store.New(persist, sealer, index, e.log)
	perm := access.NewEngine(st)

	sy := syncer.New(e.remote, st, sealer, ring, perm, user.ID, syncer.Config{
		PollInterval:       e.cfg.PollInterval,
		NetTimeout:         e.cfg.NetTimeout,
		BackoffBase:        e.cfg.BackoffBase,
		BackoffCeiling:     e.cfg.BackoffCeiling,
		MaxRetries:         e.cfg.MaxRetries,
		PushBatchSize:      e.cfg.PushBatchSize,
		QuarantineAttempts: syncer.DefaultConfig().QuarantineAttempts,
	}, e.log)

	cm := collab.New(st, ring, perm, e.remote, e.remote, user.ID, e.cfg.InviteTTL, e.log)

	if err := st.Load(ctx); err != nil {
		persist.Close()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	group, runCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return sy.Run(runCtx) })
	group.Go(func() error { return e.inviteJanitor(runCtx, cm) })

	e.mu.Lock()
	e.user = user
	e.masterKey = masterKey
	e.cipher = cipher
	e.ring = ring
	e.persist = persist
	e.store = st
	e.index = index
	e.perm = perm
	e.collab = cm
	e.syncer = sy
	e.group = group
	e.cancel = cancel
	e.mu.Unlock()

	e.log.Info(ctx, "engine unlocked", "user_id", user.ID, "cipher", cipher.Name())
	return nil
}

// inviteJanitor periodically removes invites past their TTL.
func (e *Engine) inviteJanitor(ctx context.Context, cm *collab.Manager) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := cm.ExpireInvites(ctx); err != nil {
				e.log.Warn(ctx, "invite expiry sweep failed", "error", err)
			}
		}
	}
}

// Shutdown stops the background workers, closes persistence and wipes all
// key material. The engine cannot be reused afterwards.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	cancel, group := e.cancel, e.group
	persist, ring := e.persist, e.ring
	masterKey := e.masterKey
	e.user = nil
	e.cancel, e.group = nil, nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if group != nil {
		// Workers exit with context.Canceled on a clean shutdown.
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Warn(ctx, "worker exited with error", "error", err)
		}
	}
	if ring != nil {
		ring.Close()
	}
	cryptox.Wipe(masterKey)
	if persist != nil {
		if err := persist.Close(); err != nil {
			return err
		}
	}
	e.log.Info(ctx, "engine shut down")
	return nil
}
