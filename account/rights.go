// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package account

import "strings"

// Right is a single permission an application can hold on a data
// container.
type Right uint8

// RightSet is a bitmask of Rights. The zero value is the empty set.
type RightSet uint8

const (
	// RightRead permits reading container content.
	RightRead Right = 1 << iota
	// RightInsert permits adding new entries.
	RightInsert
	// RightUpdate permits modifying existing entries.
	RightUpdate
	// RightDelete permits removing entries.
	RightDelete
	// RightManagePermissions permits changing other applications'
	// access to the container.
	RightManagePermissions
)

var rightNames = map[Right]string{
	RightRead:              "read",
	RightInsert:            "insert",
	RightUpdate:            "update",
	RightDelete:            "delete",
	RightManagePermissions: "manage-permissions",
}

// Rights builds a RightSet from individual rights.
func Rights(rights ...Right) RightSet {
	var set RightSet
	for _, right := range rights {
		set |= RightSet(right)
	}
	return set
}

// AllRights returns the full permission set, granted on dedicated
// containers provisioned for a single application.
func AllRights() RightSet {
	return Rights(RightRead, RightInsert, RightUpdate, RightDelete, RightManagePermissions)
}

// Has reports whether the set contains right.
func (s RightSet) Has(right Right) bool {
	return s&RightSet(right) != 0
}

// Union returns the set extended with other. Authorization is
// additive: re-authorizing merges requested rights into held ones.
func (s RightSet) Union(other RightSet) RightSet {
	return s | other
}

// IsEmpty reports whether the set contains no rights.
func (s RightSet) IsEmpty() bool {
	return s == 0
}

// String returns the rights as a comma-separated list, e.g.
// "read,update".
func (s RightSet) String() string {
	if s.IsEmpty() {
		return "(none)"
	}
	var names []string
	for _, right := range []Right{RightRead, RightInsert, RightUpdate, RightDelete, RightManagePermissions} {
		if s.Has(right) {
			names = append(names, rightNames[right])
		}
	}
	return strings.Join(names, ",")
}

// ParseRight parses a single right name as used in CLI flags and
// authorization requests.
func ParseRight(name string) (Right, bool) {
	for right, rightName := range rightNames {
		if rightName == name {
			return right, true
		}
	}
	return 0, false
}
