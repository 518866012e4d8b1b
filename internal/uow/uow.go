package uow

import (
	"context"

	postgres "github.com/besttickets/tickets-go/internal/repository/postgres"
)

// AfterCommit runs after the surrounding transaction committed. Hooks are the
// place for cache invalidation and notifications that must not fire on a
// rolled-back write.
type AfterCommit func(ctx context.Context)

type UoW struct {
	store *postgres.Store
}

func NewUoW(store *postgres.Store) *UoW {
	return &UoW{store: store}
}

// Do runs fn inside one transaction and, after a successful commit, executes
// the hooks fn registered through after, in registration order.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx postgres.DB, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.store.RunTx(ctx, nil, func(ctx context.Context, tx postgres.DB) error {
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
