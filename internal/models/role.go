package models

// Role is a capability level on a resource. The lattice is strictly ordered:
// viewer < editor < admin < owner.
type Role int

const (
	RoleNone Role = iota
	RoleViewer
	RoleEditor
	RoleAdmin
	RoleOwner
)

// AtLeast reports whether r grants at least the capability of min.
func (r Role) AtLeast(min Role) bool { return r >= min }

func (r Role) String() string {
	switch r {
	case RoleViewer:
		return "viewer"
	case RoleEditor:
		return "editor"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "none"
	}
}

// Action is an operation class gated by the permission engine.
type Action int

const (
	// ActionRead covers reads and decryption of content.
	ActionRead Action = iota
	// ActionEdit covers creating and editing content.
	ActionEdit
	// ActionManage covers deletion and board management.
	ActionManage
	// ActionOwn covers membership changes and ownership transfer.
	ActionOwn
)

// MinRole maps an action to the minimum role that may perform it.
func (a Action) MinRole() Role {
	switch a {
	case ActionRead:
		return RoleViewer
	case ActionEdit:
		return RoleEditor
	case ActionManage:
		return RoleAdmin
	default:
		return RoleOwner
	}
}

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionEdit:
		return "edit"
	case ActionManage:
		return "manage"
	default:
		return "own"
	}
}
