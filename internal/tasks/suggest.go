package tasks

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/memeindex/memeindex/internal/backend"
)

// MaxTypoDistance is the largest edit distance for which a known task type
// is suggested.
const MaxTypoDistance = 3

// KnownTypes lists the task types the client can act on.
//
//nolint:gochecknoglobals // Read-only lookup table
var KnownTypes = []string{
	backend.TaskInviteFriends,
	backend.TaskJoinBot,
	backend.TaskJoinGroup,
	backend.TaskCustom,
}

// SuggestType returns the known task type closest to input, or "" when none
// is within MaxTypoDistance.
func SuggestType(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return ""
	}

	minDist := MaxTypoDistance + 1
	suggestion := ""
	for _, known := range KnownTypes {
		dist := levenshtein.ComputeDistance(input, known)
		if dist == 0 {
			return known
		}
		if dist < minDist {
			minDist = dist
			suggestion = known
		}
	}

	if minDist <= MaxTypoDistance {
		return suggestion
	}
	return ""
}
