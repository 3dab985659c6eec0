package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-procure/meridian-procure/internal/shared"
)

// Resolver looks up the actor behind an authenticated subject. The engine
// treats identity as an external read-only collaborator.
type Resolver interface {
	Resolve(ctx context.Context, userID int64) (Actor, error)
}

// PGResolver resolves actors from the users table.
type PGResolver struct {
	pool *pgxpool.Pool
}

// NewPGResolver constructs a PGResolver.
func NewPGResolver(pool *pgxpool.Pool) *PGResolver {
	return &PGResolver{pool: pool}
}

// Resolve fetches id, name and role for the given user.
func (r *PGResolver) Resolve(ctx context.Context, userID int64) (Actor, error) {
	var actor Actor
	var role string
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, role FROM users WHERE id = $1 AND active`, userID,
	).Scan(&actor.ID, &actor.Name, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Actor{}, fmt.Errorf("identity: user %d: %w", userID, shared.ErrNotFound)
		}
		return Actor{}, fmt.Errorf("identity: resolve user %d: %w", userID, err)
	}
	actor.Role = Role(role)
	return actor, nil
}

// StaticResolver serves a fixed actor set. Used in tests and seeds.
type StaticResolver map[int64]Actor

// Resolve returns the configured actor or ErrNotFound.
func (r StaticResolver) Resolve(ctx context.Context, userID int64) (Actor, error) {
	actor, ok := r[userID]
	if !ok {
		return Actor{}, fmt.Errorf("identity: user %d: %w", userID, shared.ErrNotFound)
	}
	return actor, nil
}
