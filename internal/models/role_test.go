package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_Lattice(t *testing.T) {
	ordered := []Role{RoleNone, RoleViewer, RoleEditor, RoleAdmin, RoleOwner}
	for i, lower := range ordered {
		for j, higher := range ordered {
			if i <= j {
				assert.True(t, higher.AtLeast(lower), "%s should grant %s", higher, lower)
			} else {
				assert.False(t, higher.AtLeast(lower), "%s should not grant %s", higher, lower)
			}
		}
	}
}

func TestAction_MinRole(t *testing.T) {
	tests := []struct {
		action Action
		want   Role
	}{
		{ActionRead, RoleViewer},
		{ActionEdit, RoleEditor},
		{ActionManage, RoleAdmin},
		{ActionOwn, RoleOwner},
	}
	for _, tt := range tests {
		t.Run(tt.action.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.action.MinRole())
		})
	}
}
