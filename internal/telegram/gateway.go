package telegram

import (
	"context"
	"errors"
	"fmt"

	"userbotgo/backend/internal/models"

	"github.com/gotd/td/session"
	tgclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

// mtGateway implements Gateway over short-lived gotd clients. Each call runs
// its own client: send-code establishes the auth key and exports the
// session, the follow-up calls import it so the handshake continues on the
// same key.
type mtGateway struct{}

func NewGateway() Gateway { return &mtGateway{} }

func (g *mtGateway) SendCode(ctx context.Context, phone string, apiID int, apiHash string) (string, []byte, error) {
	storage := &session.StorageMemory{}
	client := tgclient.NewClient(apiID, apiHash, tgclient.Options{SessionStorage: storage})

	var codeHash string
	err := client.Run(ctx, func(ctx context.Context) error {
		sent, err := client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
		if err != nil {
			return err
		}
		code, ok := sent.(*tg.AuthSentCode)
		if !ok {
			return fmt.Errorf("unexpected sent code type %T", sent)
		}
		codeHash = code.PhoneCodeHash
		return nil
	})
	if err != nil {
		return "", nil, mapAuthError(err)
	}

	data, err := storage.LoadSession(ctx)
	if err != nil {
		return "", nil, err
	}
	return codeHash, data, nil
}

func (g *mtGateway) SignIn(ctx context.Context, sessionData []byte, apiID int, apiHash, phone, codeHash, code string) (*AuthResult, error) {
	return g.authorize(ctx, sessionData, apiID, apiHash, func(ctx context.Context, client *tgclient.Client) error {
		_, err := client.Auth().SignIn(ctx, phone, code, codeHash)
		return err
	})
}

func (g *mtGateway) CheckPassword(ctx context.Context, sessionData []byte, apiID int, apiHash, password string) (*AuthResult, error) {
	return g.authorize(ctx, sessionData, apiID, apiHash, func(ctx context.Context, client *tgclient.Client) error {
		_, err := client.Auth().Password(ctx, password)
		return err
	})
}

func (g *mtGateway) Revoke(ctx context.Context, sessionData []byte, apiID int, apiHash string) error {
	storage := &session.StorageMemory{}
	if err := storage.StoreSession(ctx, sessionData); err != nil {
		return err
	}
	client := tgclient.NewClient(apiID, apiHash, tgclient.Options{SessionStorage: storage})
	return client.Run(ctx, func(ctx context.Context) error {
		_, err := client.API().AuthLogOut(ctx)
		return err
	})
}

// authorize runs the given sign-in step on an imported session and, on
// success, captures the profile and the refreshed session.
func (g *mtGateway) authorize(ctx context.Context, sessionData []byte, apiID int, apiHash string, step func(context.Context, *tgclient.Client) error) (*AuthResult, error) {
	storage := &session.StorageMemory{}
	if err := storage.StoreSession(ctx, sessionData); err != nil {
		return nil, err
	}
	client := tgclient.NewClient(apiID, apiHash, tgclient.Options{SessionStorage: storage})

	res := &AuthResult{}
	err := client.Run(ctx, func(ctx context.Context) error {
		if err := step(ctx, client); err != nil {
			return err
		}
		self, err := client.Self(ctx)
		if err != nil {
			return err
		}
		res.UserID = self.ID
		res.FirstName = self.FirstName
		res.LastName = self.LastName
		res.Username = self.Username
		return nil
	})
	if err != nil {
		return nil, mapAuthError(err)
	}

	res.Session, err = storage.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// mapAuthError folds transport errors into the shared taxonomy so handlers
// and callers never see raw RPC codes.
func mapAuthError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return models.Err2FARequired
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return fmt.Errorf("%w (retry in %s)", models.ErrRateLimited, wait)
	}
	switch {
	case tgerr.Is(err, "PHONE_CODE_INVALID"):
		return models.ErrInvalidCode
	case tgerr.Is(err, "PHONE_CODE_EXPIRED"):
		return models.ErrExpiredVerification
	case tgerr.Is(err, "SESSION_PASSWORD_NEEDED"):
		return models.Err2FARequired
	case tgerr.Is(err, "PASSWORD_HASH_INVALID"):
		return models.ErrInvalidPassword
	case tgerr.Is(err, "PHONE_NUMBER_INVALID", "PHONE_NUMBER_BANNED", "API_ID_INVALID", "API_ID_PUBLISHED_FLOOD"):
		return models.ErrInvalidCredentials
	}
	return err
}
