// Package pg bootstraps the PostgreSQL layer of the engine on pgx/v5: a
// retrying pool constructor, goose migrations from an embedded filesystem, a
// readiness check and error classification helpers used by the stores.
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, db.Migrations(), cfg, log); err != nil {
//		return err
//	}
//
// Stores accept small interfaces (QueryRow, Exec, Query, Begin) that
// *pgxpool.Pool satisfies, so tests can pass a transaction or a pool alike.
package pg
