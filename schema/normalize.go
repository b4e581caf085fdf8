package schema

import "strings"

// ValidateProjectID ensures a project id matches [a-z0-9._-] with no normalization.
func ValidateProjectID(projectID ProjectID) error {
	raw := string(projectID)
	if raw == "" || len(raw) > 128 {
		return ErrInvalidProject
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidProject
	}
	if raw == "." || raw == ".." {
		return ErrInvalidProject
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidProject
	}
	return nil
}

// NormalizeRoute parses a route name. The empty string yields "" so callers
// can fall back to automatic route selection.
func NormalizeRoute(value string) (Route, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return "", nil
	case "create", "initial", "fresh":
		return RouteCreate, nil
	case "update", "followup", "follow-up":
		return RouteUpdate, nil
	case "redesign":
		return RouteRedesign, nil
	default:
		return "", ErrInvalidRoute
	}
}
