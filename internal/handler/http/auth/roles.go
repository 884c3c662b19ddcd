package auth

import (
	"net/http"
	"slices"
	"strings"
)

// Roles carried in the "role" claim.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Permission is what a role may call. Paths accept "/*" for everything and
// "/prefix/*" for prefix and its subtree.
type Permission struct {
	Methods []string
	Paths   []string
}

// RolePermissions lists every known role. Admins operate the queue and
// verify credentials; viewers only read jobs and stats.
var RolePermissions = map[string]Permission{
	RoleAdmin: {
		Methods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		Paths:   []string{"/*"},
	},
	RoleViewer: {
		Methods: []string{http.MethodGet, http.MethodOptions},
		Paths:   []string{"/jobs/*", "/stats"},
	},
}

func checkRolePermission(role, method, path string) bool {
	perm, ok := RolePermissions[role]
	return ok && slices.Contains(perm.Methods, method) && matchesPathPattern(path, perm.Paths)
}

func matchesPathPattern(path string, patterns []string) bool {
	return slices.ContainsFunc(patterns, func(pattern string) bool {
		prefix, subtree := strings.CutSuffix(pattern, "/*")
		switch {
		case !subtree:
			return path == pattern
		case prefix == "":
			return true
		default:
			return path == prefix || strings.HasPrefix(path, prefix+"/")
		}
	})
}
