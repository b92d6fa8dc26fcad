package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfeidau/docsign/internal/auth"
)

type TokenCmd struct {
	UserID   string        `help:"User identifier" required:"" name:"user-id"`
	Username string        `help:"Username claim"`
	Email    string        `help:"Email claim"`
	TTL      time.Duration `help:"Token lifetime" default:"1h"`
	Secret   string        `help:"JWT signing secret" required:"" env:"JWT_SECRET"`
}

func (t *TokenCmd) Run(ctx context.Context) error {
	token, err := auth.IssueToken([]byte(t.Secret), auth.Principal{
		UserID:   t.UserID,
		Username: t.Username,
		Email:    t.Email,
	}, t.TTL)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
