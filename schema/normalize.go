package schema

import (
	"strings"
	"unicode"
)

// NormalizeWorkspaceName validates and normalizes a workspace name.
// Allowed characters: letters, digits, '.', '_', '-'.
func NormalizeWorkspaceName(name string) (WorkspaceName, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrInvalidWorkspaceName
	}
	for _, r := range trimmed {
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return "", ErrInvalidWorkspaceName
	}
	return WorkspaceName(trimmed), nil
}

// NormalizePageName validates and normalizes a logical page name. Page
// names end up embedded in page runtime scope as string literals, so
// anything printable except quotes and backslashes is allowed.
func NormalizePageName(name string) (PageName, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrInvalidPageName
	}
	for _, r := range trimmed {
		if r == '"' || r == '\\' || !unicode.IsPrint(r) {
			return "", ErrInvalidPageName
		}
	}
	return PageName(trimmed), nil
}
