// Package access is the permission engine: it computes a user's effective
// capability on a resource from membership records and gates every mutation
// and decryption in the system.
package access

import (
	"fmt"

	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/models"
)

// Directory resolves resource ownership chains and membership roles. The item
// store implements it; lookups are id-based so the chain is traversed without
// stored back-references.
type Directory interface {
	// Lineage returns the resource id followed by its ancestors up to the
	// owning space (Note -> Board(s) -> Space). Unknown resources yield a
	// single-element lineage of the id itself.
	Lineage(resourceID string) []string

	// RoleOf returns the role the user holds directly on the resource, or
	// RoleNone.
	RoleOf(userID, resourceID string) models.Role
}

// Engine computes capabilities and authorizes actions.
type Engine struct {
	dir Directory
}

// NewEngine constructs a permission engine over the given directory.
func NewEngine(dir Directory) *Engine {
	return &Engine{dir: dir}
}

// Capability returns the highest role the user holds at any level of the
// resource's ownership chain, or RoleNone.
func (e *Engine) Capability(userID, resourceID string) models.Role {
	best := models.RoleNone
	for _, id := range e.dir.Lineage(resourceID) {
		if r := e.dir.RoleOf(userID, id); r > best {
			best = r
		}
	}
	return best
}

// Authorize checks that the user may perform the action on the resource.
// Failure yields common.ErrPermissionDenied; callers must abort with no
// partial effect.
func (e *Engine) Authorize(userID, resourceID string, action models.Action) error {
	got := e.Capability(userID, resourceID)
	if !got.AtLeast(action.MinRole()) {
		return fmt.Errorf("%w: user %s needs %s on %s, has %s",
			common.ErrPermissionDenied, userID, action.MinRole(), resourceID, got)
	}
	return nil
}
