package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/quartzid/quartz/internal/idp/domain"
	"github.com/quartzid/quartz/internal/idp/store"
	"github.com/quartzid/quartz/pkg/cryptox"
	"github.com/quartzid/quartz/pkg/idx"
	"github.com/quartzid/quartz/pkg/slogx"
)

var (
	ErrBootstrapAlready      = errors.New("system already bootstrapped")
	ErrBootstrapUnauthorized = errors.New("unauthorized bootstrap attempt")
)

// BootstrapService performs first-run seeding: one organization, its first
// client with a generated secret and RSA signing key, and one platform
// account admin. It refuses to run twice.
type BootstrapService struct {
	Store store.Store
	Token string // pre-configured bootstrap token

	// RSAKeyBits defaults to 2048. Tests drop it to speed up key
	// generation.
	RSAKeyBits int
}

type BootstrapRequest struct {
	OrgName string

	ClientName         string
	RedirectURIs       []string
	AllowedRPIDs       []string
	Scopes             []string
	ConfidentialClient bool

	AdminEmail    string
	AdminName     string
	AdminPassword string
}

type BootstrapResult struct {
	OrgID        string
	ClientID     string
	ClientSecret string // empty for public clients; shown exactly once
	AccountID    string
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	empty, err := s.Store.Organizations().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// Bootstrap seeds the initial tenant. The whole operation runs in one
// transaction so a half-seeded system cannot exist.
func (s *BootstrapService) Bootstrap(ctx context.Context, token string, req BootstrapRequest) (*BootstrapResult, error) {
	l := slogx.FromContext(ctx)

	if bootstrapped, err := s.IsBootstrapped(ctx); err != nil {
		return nil, err
	} else if bootstrapped {
		l.Warn("bootstrap attempted on seeded system")
		return nil, ErrBootstrapAlready
	}

	if s.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		l.Warn("unauthorized bootstrap attempt")
		return nil, ErrBootstrapUnauthorized
	}

	if strings.TrimSpace(req.OrgName) == "" ||
		strings.TrimSpace(req.ClientName) == "" ||
		len(req.RedirectURIs) == 0 ||
		strings.TrimSpace(req.AdminEmail) == "" ||
		req.AdminPassword == "" {
		return nil, ErrInvalidRequest
	}

	passHash, err := cryptox.HashPassword(req.AdminPassword)
	if err != nil {
		return nil, err
	}

	var clientSecret, secretHash string
	if req.ConfidentialClient {
		clientSecret, err = cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return nil, err
		}
		secretHash, err = cryptox.HashPassword(clientSecret)
		if err != nil {
			return nil, err
		}
	}

	keyBits := s.RSAKeyBits
	if keyBits == 0 {
		keyBits = 2048
	}
	pemKey, err := cryptox.GenerateRSAKey(keyBits)
	if err != nil {
		return nil, err
	}
	encryptedKey, err := cryptox.EncryptPrivateKey(pemKey)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile"}
	}

	result := &BootstrapResult{
		OrgID:        idx.New().String(),
		ClientID:     idx.New().String(),
		ClientSecret: clientSecret,
		AccountID:    idx.New().String(),
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		org := domain.Organization{
			ID:        result.OrgID,
			Name:      strings.TrimSpace(req.OrgName),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Organizations().CreateOrganization(ctx, org); err != nil {
			return err
		}

		tenant := tx.Tenant(org.ID)

		client := domain.Client{
			ID:           result.ClientID,
			OrgID:        org.ID,
			Name:         strings.TrimSpace(req.ClientName),
			SecretHash:   secretHash,
			RedirectURIs: req.RedirectURIs,
			AllowedRPIDs: req.AllowedRPIDs,
			Scopes:       scopes,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tenant.Clients().CreateClient(ctx, client); err != nil {
			return err
		}

		if err := tenant.SigningKeys().CreateSigningKey(ctx, domain.SigningKey{
			ClientID:            client.ID,
			PrivateKeyEncrypted: encryptedKey,
			CreatedAt:           now,
		}); err != nil {
			return err
		}

		return tx.Accounts().CreateAccount(ctx, domain.Account{
			ID:           result.AccountID,
			Email:        strings.TrimSpace(req.AdminEmail),
			DisplayName:  req.AdminName,
			PasswordHash: passHash,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	})
	if err != nil {
		return nil, err
	}

	l.Info("system bootstrapped", "org", req.OrgName)
	return result, nil
}
