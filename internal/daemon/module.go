// Package daemon composes the courier components into a running
// process via fx, and drives the session lifecycle through restore,
// ready and drain.
package daemon

import (
	"context"

	"github.com/lfmartins/courier/internal/api"
	"github.com/lfmartins/courier/internal/bus"
	"github.com/lfmartins/courier/internal/chatlist"
	"github.com/lfmartins/courier/internal/config"
	"github.com/lfmartins/courier/internal/directory"
	"github.com/lfmartins/courier/internal/lock"
	"github.com/lfmartins/courier/internal/logging"
	"github.com/lfmartins/courier/internal/outbox"
	"github.com/lfmartins/courier/internal/persist"
	"github.com/lfmartins/courier/internal/session"
	"github.com/lfmartins/courier/internal/status"
	"github.com/lfmartins/courier/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideDB,
			provideStore,
			provideDirectory,
			provideIndex,
			provideSender,
			provideDispatcher,
			provideContactService,
			provideChatService,
			provideMessageService,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName, p.Config.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Guard, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	g, err := lock.Acquire(session.Dir(p.SessionName), p.SessionName)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return g, nil
}

func provideDB(p Params, logger *zap.Logger) (*persist.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := persist.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("database initialized", zap.String("path", dbPath))
	return db, nil
}

func provideStore(b *bus.Bus, logger *zap.Logger) *store.Store {
	return store.New(b, logger)
}

func provideDirectory(p Params, b *bus.Bus, logger *zap.Logger) *directory.Directory {
	return directory.New(p.Config.ViewerID, b, logger)
}

func provideIndex(st *store.Store, dir *directory.Directory) *chatlist.Index {
	return chatlist.New(st, dir)
}

func provideSender(p Params) outbox.TextSender {
	return &outbox.Loopback{Latency: p.Config.DeliveryDelayValue()}
}

func provideDispatcher(p Params, sender outbox.TextSender, st *store.Store, b *bus.Bus, logger *zap.Logger) *outbox.Dispatcher {
	return outbox.NewDispatcher(sender, st, b, logger, p.Config.SendTimeoutValue())
}

func provideContactService(dir *directory.Directory, db *persist.DB, logger *zap.Logger) *api.ContactService {
	return api.NewContactService(dir, db, logger)
}

func provideChatService(p Params, dir *directory.Directory, st *store.Store, ix *chatlist.Index, db *persist.DB, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(dir, st, ix, db, p.Config.ViewerID, logger)
}

func provideMessageService(p Params, st *store.Store, d *outbox.Dispatcher, db *persist.DB, logger *zap.Logger) *api.MessageService {
	return api.NewMessageService(st, d, db, p.Config.ViewerID, p.Config.ViewerName, logger)
}

func registerLifecycle(lc fx.Lifecycle, g *lock.Guard, db *persist.DB, st *store.Store, dir *directory.Directory, ix *chatlist.Index, d *outbox.Dispatcher, machine *status.Machine, chats *api.ChatService, contacts *api.ContactService, _ *api.MessageService, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			st.BindIndex(ix)
			st.BindPersister(db)

			if err := machine.Transition(status.Restoring); err != nil {
				return err
			}
			if err := restore(db, st, dir, logger); err != nil {
				_ = machine.Transition(status.Error)
				return err
			}

			d.Start(context.Background())

			if err := machine.Transition(status.Ready); err != nil {
				return err
			}
			logger.Info("daemon ready",
				zap.Int("chats", len(chats.List())),
				zap.Int("contacts", len(contacts.List())))
			return nil
		},
		OnStop: func(_ context.Context) error {
			_ = machine.Transition(status.Draining)
			d.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing database", zap.Error(err))
			}
			if err := g.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			_ = machine.Transition(status.Closed)
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// restore rehydrates in-memory state from the session database.
func restore(db *persist.DB, st *store.Store, dir *directory.Directory, logger *zap.Logger) error {
	contacts, err := db.LoadContacts()
	if err != nil {
		return err
	}
	dir.RestoreContacts(contacts)

	convs, err := db.LoadConversations()
	if err != nil {
		return err
	}
	dir.Restore(convs)

	msgs, err := db.LoadMessages()
	if err != nil {
		return err
	}
	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	st.Restore(ids, msgs)

	logger.Info("session restored",
		zap.Int("contacts", len(contacts)),
		zap.Int("conversations", len(convs)),
		zap.Int("messages", len(msgs)))
	return nil
}
