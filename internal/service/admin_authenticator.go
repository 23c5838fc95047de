package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	appErrors "github.com/fhsh/makeup-exam-api/pkg/errors"
)

// generatedTokenBytes yields a 64 character hex token.
const generatedTokenBytes = 32

// AdminAuthenticator guards roster ingestion with a single static secret.
// The secret is fixed at construction and never changes afterwards.
type AdminAuthenticator struct {
	digest    [sha256.Size]byte
	generated bool
}

// NewAdminAuthenticator uses configured as the secret, or generates one and
// logs it so an operator can copy it into the uploader.
func NewAdminAuthenticator(configured string, logger *zap.Logger) (*AdminAuthenticator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if configured != "" {
		return &AdminAuthenticator{digest: sha256.Sum256([]byte(configured))}, nil
	}

	buf := make([]byte, generatedTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate admin token: %w", err)
	}
	token := hex.EncodeToString(buf)
	logger.Warn("ADMIN_SECRET_TOKEN is not set; generated a token for this process",
		zap.String("admin_token", token),
		zap.String("hint", "set ADMIN_SECRET_TOKEN to keep the token stable across restarts"),
	)
	return &AdminAuthenticator{digest: sha256.Sum256([]byte(token)), generated: true}, nil
}

// Generated reports whether the secret was generated at startup.
func (a *AdminAuthenticator) Generated() bool {
	return a.generated
}

// Authenticate accepts presented only when it equals the secret. Digests of
// equal length are compared so timing reveals neither content nor length.
func (a *AdminAuthenticator) Authenticate(presented string) error {
	if presented == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "admin token is required")
	}
	digest := sha256.Sum256([]byte(presented))
	if subtle.ConstantTimeCompare(digest[:], a.digest[:]) != 1 {
		return appErrors.Clone(appErrors.ErrUnauthorized, "admin token is invalid")
	}
	return nil
}
