package main

import (
	"github.com/MarcoPoloResearchLab/storage-manager/internal/auth"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/config"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func newTokenCommand() *cobra.Command {
	var identity identityFlags
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a local identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				Issuer:        appConfig.Issuer,
				TokenTTL:      appConfig.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueAccessToken(cmd.Context(), identity.identity())
			if err != nil {
				return err
			}
			return printJSON(cmd, tokenResponse{AccessToken: token, ExpiresIn: expiresIn, TokenType: "Bearer"})
		},
	}
	identity.register(cmd, false)
	return cmd
}

// identityFlags selects who a command acts as.
type identityFlags struct {
	accessToken string
	userID      string
	email       string
	name        string
}

func (f *identityFlags) register(cmd *cobra.Command, allowToken bool) {
	if allowToken {
		cmd.PersistentFlags().StringVar(&f.accessToken, "access-token", "", "Act as the holder of this access token")
	}
	cmd.PersistentFlags().StringVar(&f.userID, "user-id", "", "User id of the local identity")
	cmd.PersistentFlags().StringVar(&f.email, "email", "", "Email of the local identity")
	cmd.PersistentFlags().StringVar(&f.name, "name", "", "Display name of the local identity")
}

func (f *identityFlags) identity() inventory.Identity {
	identity := inventory.Identity{ID: f.userID, Email: f.email}
	if f.name != "" {
		identity.UserMetadata = map[string]any{"full_name": f.name}
	}
	return identity
}
