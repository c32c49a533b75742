package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"zeroone.host/internal/core/ports"
)

const maxSlugLen = 40

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns a display name into a DNS-label-safe slug. The slug doubles
// as the container name suffix and the agent's subdomain, so it must stay
// stable for the agent's lifetime.
func slugify(name string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.Trim(s[:maxSlugLen], "-")
	}
	if s == "" {
		s = "agent"
	}
	return s
}

// uniqueSlug appends a numeric suffix until the slug is free. Names are
// globally unique case-insensitively, so collisions only happen when two
// distinct names normalize to the same slug.
func uniqueSlug(ctx context.Context, repo ports.AgentRepository, name string) (string, error) {
	base := slugify(name)

	taken, err := repo.SlugExists(ctx, base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}

	for i := 1; i <= 99; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		taken, err := repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free slug for %q", base)
}
