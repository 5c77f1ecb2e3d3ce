package main

import (
	"errors"
	"os"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "storage-manager",
		Short:         "Storage manager inventory service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newServeCommand(), newTokenCommand(), newSpacesCommand(), newBoxesCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("backend-mode", defaults.GetString("backend.mode"), "Data backend (embedded, supabase)")
	cmd.PersistentFlags().String("supabase-url", defaults.GetString("supabase.url"), "Hosted project URL")
	cmd.PersistentFlags().String("supabase-anon-key", "", "Hosted project anon key (overrides env)")
	cmd.PersistentFlags().String("signing-secret", "", "Access token signing secret (overrides env)")
	cmd.PersistentFlags().String("auth-issuer", defaults.GetString("auth.issuer"), "Expected access token issuer")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Issued token TTL in minutes")
	cmd.PersistentFlags().String("cookie-name", defaults.GetString("auth.cookie_name"), "Cookie carrying the access token")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "Embedded backend SQLite path")
	cmd.PersistentFlags().String("cache-path", defaults.GetString("cache.path"), "Durable snapshot cache SQLite path (empty keeps it in memory)")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("cors.allowed_origins"), "Comma separated CORS origins")
	cmd.PersistentFlags().String("is-owner-rule", "", "Expression overriding the owner capability")
	cmd.PersistentFlags().String("can-edit-rule", "", "Expression overriding the edit capability")
	cmd.PersistentFlags().String("can-view-rule", "", "Expression overriding the view capability")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "backend.mode", "backend-mode")
	bindFlag(cmd, "supabase.url", "supabase-url")
	bindFlag(cmd, "supabase.anon_key", "supabase-anon-key")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.issuer", "auth-issuer")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "auth.cookie_name", "cookie-name")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "cache.path", "cache-path")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
	bindFlag(cmd, "permissions.is_owner_rule", "is-owner-rule")
	bindFlag(cmd, "permissions.can_edit_rule", "can-edit-rule")
	bindFlag(cmd, "permissions.can_view_rule", "can-view-rule")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
