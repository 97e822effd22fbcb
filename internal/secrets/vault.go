// Package secrets keeps the credentials that action configs reference as
// ${{secrets.NAME}}. Values are encrypted before they reach the store and are
// only decrypted in memory while an action runs.
package secrets

import (
	"context"
	"regexp"
	"time"

	"github.com/rendis/lendflow/pkg/schema"
)

// CredentialStore is the persistence the vault needs. Satisfied by store.Store.
type CredentialStore interface {
	PutCredential(ctx context.Context, name string, value []byte, now time.Time) error
	GetCredential(ctx context.Context, name string) ([]byte, error)
	DeleteCredential(ctx context.Context, name string) error
	ListCredentials(ctx context.Context) ([]string, error)
}

var (
	namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	refPattern  = regexp.MustCompile(`\$\{\{\s*secrets\.([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
)

// ValidName reports whether name can be stored and referenced.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// References returns the credential names referenced in text, in order of
// first appearance.
func References(text string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range refPattern.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// expand replaces every reference in text using lookup. The first failing
// lookup aborts the expansion.
func expand(text string, lookup func(name string) (string, error)) (string, error) {
	if !refPattern.MatchString(text) {
		return text, nil
	}
	var firstErr error
	out := refPattern.ReplaceAllStringFunc(text, func(ref string) string {
		if firstErr != nil {
			return ref
		}
		name := refPattern.FindStringSubmatch(ref)[1]
		val, err := lookup(name)
		if err != nil {
			firstErr = err
			return ref
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func unknownCredential(name string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeCredential, "Unknown credential: %s", name)
}
