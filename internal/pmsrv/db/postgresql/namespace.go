package postgresql

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/workdeck/workdeck/internal/common/apperrors"
	"github.com/workdeck/workdeck/internal/pmsrv/db/dberror"
)

// maxSlugLen bounds the base slug; disambiguation suffixes are added on
// top, and the full database name must stay within Postgres's 63-byte
// identifier limit including the configured prefix.
const maxSlugLen = 24

// maxDeriveAttempts bounds collision probing.
const maxDeriveAttempts = 50

// Slugify converts a human-readable project name into a namespace
// candidate: lowercase, URL-safe, starting with a letter.
func Slugify(name string) string {
	var b strings.Builder
	lastUnderscore := true // leading separators are dropped
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	slug := strings.Trim(b.String(), "_")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "_")
	}
	if slug == "" {
		return "project"
	}
	if slug[0] >= '0' && slug[0] <= '9' {
		slug = "p" + slug
	}
	return slug
}

// DeriveNamespace turns a project name into a namespace that is unique
// across all tenants, appending a numeric suffix on collision. The
// returned namespace is reserved only once the project row is inserted;
// a lost race surfaces there as ErrAlreadyExists and the caller simply
// derives again.
func (mm *metadataManager) DeriveNamespace(ctx context.Context, name string) (string, apperrors.Error) {
	base := Slugify(name)

	for attempt := 1; attempt <= maxDeriveAttempts; attempt++ {
		candidate := base
		if attempt > 1 {
			candidate = fmt.Sprintf("%s_%d", base, attempt)
		}

		taken, err := mm.namespaceExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}

	log.Ctx(ctx).Error().Str("base", base).Msg("namespace derivation exhausted")
	return "", dberror.ErrInvalidNamespace.Msg("unable to derive a unique namespace for: " + name)
}

func (mm *metadataManager) namespaceExists(ctx context.Context, namespace string) (bool, apperrors.Error) {
	var exists bool
	err := mm.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM projects WHERE namespace = $1)`, namespace).Scan(&exists)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("namespace", namespace).Msg("failed to check namespace")
		return false, dberror.ErrDatabase.Err(err)
	}
	return exists, nil
}
