// Package visibility decides which content a viewer may read.
//
// Levels form a lattice ordered by audience size. A viewer's allowed set is
// computed from roles and community badges; ownership is a separate
// disjunct and never widens the allowed set, so PRIVATE stays owner-only
// even for admins.
package visibility

import (
	"fmt"
	"strings"
)

type Level string

const (
	Private      Level = "private"
	AWSOnly      Level = "aws_only"
	AWSCommunity Level = "aws_community"
	Public       Level = "public"
)

var allLevels = []Level{Private, AWSOnly, AWSCommunity, Public}

// Levels returns every level, narrowest audience first.
func Levels() []Level {
	out := make([]Level, len(allLevels))
	copy(out, allLevels)
	return out
}

// Rank orders levels by audience size. Unknown levels rank below Private.
func (l Level) Rank() int {
	switch l {
	case Private:
		return 0
	case AWSOnly:
		return 1
	case AWSCommunity:
		return 2
	case Public:
		return 3
	default:
		return -1
	}
}

func (l Level) Valid() bool {
	return l.Rank() >= 0
}

func (l Level) String() string {
	return string(l)
}

// Parse accepts the stored form plus the upper-case spelling used by clients.
func Parse(raw string) (Level, error) {
	normalized := Level(strings.ToLower(strings.TrimSpace(raw)))
	if !normalized.Valid() {
		return "", fmt.Errorf("unknown visibility %q", raw)
	}
	return normalized, nil
}

// ParseList parses a comma separated list, dropping duplicates.
func ParseList(raw string) ([]Level, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	seen := make(map[Level]struct{})
	out := make([]Level, 0, 4)
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		level, err := Parse(part)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[level]; ok {
			continue
		}
		seen[level] = struct{}{}
		out = append(out, level)
	}
	return out, nil
}

// Viewer is the resolved identity of whoever is reading. The zero value is
// an anonymous viewer.
type Viewer struct {
	UserID            string
	IsAdmin           bool
	IsAWSEmployee     bool
	HasCommunityBadge bool
}

func (v Viewer) Anonymous() bool {
	return strings.TrimSpace(v.UserID) == ""
}

// Allowed returns the visibility levels the viewer may read on content they
// do not own, broadest audience first. It always contains Public.
func Allowed(v Viewer) []Level {
	if v.Anonymous() {
		return []Level{Public}
	}
	allowed := []Level{Public}
	switch {
	case v.IsAdmin || v.IsAWSEmployee:
		allowed = append(allowed, AWSCommunity, AWSOnly)
	case v.HasCommunityBadge:
		allowed = append(allowed, AWSCommunity)
	}
	return allowed
}

// CanSee applies the owner override on top of the allowed set.
func (v Viewer) CanSee(ownerID string, level Level) bool {
	return ScopeFor(v).Permits(ownerID, level)
}

// Scope is the query-ready form of a viewer: the id used for the owner
// disjunct and the allowed levels for everything else.
type Scope struct {
	ViewerID string
	Allowed  []Level
}

func ScopeFor(v Viewer) Scope {
	return Scope{
		ViewerID: strings.TrimSpace(v.UserID),
		Allowed:  Allowed(v),
	}
}

func (s Scope) Permits(ownerID string, level Level) bool {
	if s.ViewerID != "" && strings.TrimSpace(ownerID) == s.ViewerID {
		return true
	}
	for _, allowed := range s.Allowed {
		if allowed == level {
			return true
		}
	}
	return false
}

// Strings converts levels to their stored form for query arguments.
func Strings(levels []Level) []string {
	out := make([]string, 0, len(levels))
	for _, level := range levels {
		out = append(out, string(level))
	}
	return out
}
