package schema

import (
	"strings"
	"unicode"
)

// NormalizeInterpreterName validates and normalizes an interpreter name.
// Allowed characters: letters, digits, '.', '_', '-', '$', ':'.
func NormalizeInterpreterName(name string) (InterpreterName, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrInvalidRequest
	}
	for _, r := range trimmed {
		switch r {
		case '.', '_', '-', '$', ':':
			continue
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return "", ErrInvalidRequest
	}
	return InterpreterName(trimmed), nil
}

// ParseStyleTag maps a configuration or wire value to a style tag.
// Dashes are accepted in place of underscores.
func ParseStyleTag(value string) (StyleTag, bool) {
	v := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")
	if v == "" {
		return StyleNone, true
	}
	for _, tag := range StyleTags {
		if string(tag) == v {
			return tag, true
		}
	}
	return StyleNone, false
}

// ParseClasspathKind maps a configuration value to a classpath kind.
func ParseClasspathKind(value string) (ClasspathKind, bool) {
	switch ClasspathKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")) {
	case "":
		return ClasspathExtra, true
	case ClasspathProject:
		return ClasspathProject, true
	case ClasspathBuildDir:
		return ClasspathBuildDir, true
	case ClasspathProjectFiles:
		return ClasspathProjectFiles, true
	case ClasspathExternal:
		return ClasspathExternal, true
	case ClasspathExtra:
		return ClasspathExtra, true
	default:
		return "", false
	}
}
