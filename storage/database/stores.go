package database

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/examresult"
	"github.com/trezcool/chuo/core/record"
	"github.com/trezcool/chuo/core/user"
	inmemdb "github.com/trezcool/chuo/storage/database/inmem"
	mongodb "github.com/trezcool/chuo/storage/database/mongo"
	sqlxrepos "github.com/trezcool/chuo/storage/database/sqlx"
)

// Stores are the storage implementations of the configured engine.
type Stores struct {
	Records record.Store
	Users   user.Repository
	Courses examresult.CourseSource // nil unless the engine holds the legacy courses (mongo)
	SQL     *sql.DB                 // nil unless the engine is postgres

	close func(ctx context.Context) error
}

// Close releases the connections of the stores.
func (s *Stores) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// OpenStores connects to the engine of conf.Database.Engine.
// With migrate, the postgres database is created & migrated, and the mongo indexes are ensured.
func OpenStores(ctx context.Context, conf *core.Config, logger core.Logger, migrate bool) (*Stores, error) {
	switch conf.Database.Engine {
	case core.EnginePostgres:
		if migrate {
			if err := CreateIfNotExist(conf); err != nil {
				return nil, err
			}
		}
		db, err := Open(conf)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err = Migrate(db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &Stores{
			Records: sqlxrepos.NewRecordStore(db),
			Users:   sqlxrepos.NewUserRepository(db),
			SQL:     db,
			close:   func(context.Context) error { return db.Close() },
		}, nil

	case core.EngineMongo:
		client, db, err := mongodb.Connect(ctx, conf)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err = mongodb.EnsureIndexes(ctx, db, logger); err != nil {
				_ = client.Disconnect(context.Background())
				return nil, err
			}
		}
		return &Stores{
			Records: mongodb.NewRecordStore(db),
			Users:   mongodb.NewUserRepository(db),
			Courses: mongodb.NewCourseSource(db),
			close:   client.Disconnect,
		}, nil

	case core.EngineMemory:
		logger.Warn("using the in-memory engine: nothing is persisted")
		db := inmemdb.Open()
		return &Stores{
			Records: inmemdb.NewRecordStore(db),
			Users:   inmemdb.NewUserRepository(db),
		}, nil
	}
	return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}
