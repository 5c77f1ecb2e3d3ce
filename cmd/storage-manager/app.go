package main

import (
	"github.com/MarcoPoloResearchLab/storage-manager/internal/auth"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/cache"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/config"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/database"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/logging"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/permissions"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/server"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/sqlbackend"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/supabase"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/users"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/workspace"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// application holds the dependencies shared by the server and the CLI commands.
type application struct {
	config    config.AppConfig
	logger    *zap.Logger
	users     *users.Service
	validator *auth.SessionValidator
	realtime  *server.RealtimeDispatcher
	registry  *workspace.Registry
	databases []*gorm.DB
}

func newApplication(console bool) (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(logging.Options{Level: appConfig.LogLevel, Console: console})
	if err != nil {
		return nil, err
	}

	app := &application{config: appConfig, logger: logger, realtime: server.NewRealtimeDispatcher()}

	app.validator, err = auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		CookieName:    appConfig.SessionCookie,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	sources, err := app.openSources()
	if err != nil {
		app.Close()
		return nil, err
	}
	caches, err := app.openCaches()
	if err != nil {
		app.Close()
		return nil, err
	}

	app.registry, err = workspace.NewRegistry(workspace.RegistryConfig{
		Sources: sources,
		Caches:  caches,
		Rules: permissions.Rules{
			IsOwner: appConfig.IsOwnerRule,
			CanEdit: appConfig.CanEditRule,
			CanView: appConfig.CanViewRule,
		},
		OnEvent: app.realtime.PublishStoreEvent,
		Logger:  logger,
	})
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *application) openSources() (workspace.SourceFactory, error) {
	if !a.config.Embedded() {
		client, err := supabase.NewClient(supabase.Config{
			URL:     a.config.SupabaseURL,
			AnonKey: a.config.SupabaseAnonKey,
			Logger:  a.logger,
		})
		if err != nil {
			return nil, err
		}
		a.logger.Info("using hosted backend", zap.String("url", client.BaseURL()))
		return workspace.SupabaseSources(client), nil
	}

	db, err := database.OpenSQLite(a.config.DatabasePath, sqlbackend.Schema(), a.logger)
	if err != nil {
		return nil, err
	}
	a.databases = append(a.databases, db)
	a.users, err = users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return nil, err
	}
	backend, err := sqlbackend.New(sqlbackend.Config{
		Database:   db,
		Users:      a.users,
		IDProvider: sqlbackend.NewUUIDProvider(),
		Logger:     a.logger,
	})
	if err != nil {
		return nil, err
	}
	return workspace.EmbeddedSources(backend), nil
}

func (a *application) openCaches() (workspace.CacheFactory, error) {
	if a.config.CachePath == "" {
		return workspace.MemoryCaches(), nil
	}
	db, err := database.OpenSQLite(a.config.CachePath, database.Schema{Models: []any{&cache.Entry{}}}, a.logger)
	if err != nil {
		return nil, err
	}
	a.databases = append(a.databases, db)
	return workspace.SQLiteCaches(db), nil
}

// profiles returns the profile recorder of the embedded backend, or nil when
// profiles live in the hosted backend.
func (a *application) profiles() server.ProfileRecorder {
	if a.users == nil {
		return nil
	}
	return a.users
}

func (a *application) Close() {
	for _, db := range a.databases {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.logger.Sync()
}
