// Package directory implements the Directory Oracle: a blocking lookup
// from public key to user identity, plus the startup query that loads
// repository descriptors. original_source's CoreServer loads repositories
// from the same relational store the oracle serves, so PGOracle's
// ListRepositories is a direct port of that query shape, not an
// invention.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/computingfreak/DataFed/internal/repo"
)

// Oracle is the blocking public-key -> identity lookup treated as an
// external collaborator, plus the repository listing query.
type Oracle interface {
	// LookupByPublicKey resolves a Z85-encoded public key to a user
	// identity. ok is false on a miss (not an error).
	LookupByPublicKey(ctx context.Context, publicKey string) (identity string, ok bool, err error)
	// ListRepositories returns every repository candidate known to the
	// directory, validated or not — validation is the repo package's job.
	ListRepositories(ctx context.Context) ([]repo.Descriptor, error)
}

// PGOracle is a production Oracle backed by a Postgres connection pool,
// grounded on aras-group-co-aras-auth's pgxpool-based repositories.
type PGOracle struct {
	pool *pgxpool.Pool
}

// NewPGOracle connects a pgxpool to dbURL and returns a PGOracle.
func NewPGOracle(ctx context.Context, dbURL string) (*PGOracle, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to directory database: %w", err)
	}
	return &PGOracle{pool: pool}, nil
}

// LookupByPublicKey queries the user_keys table for the identity owning the
// given public key. This is identity-resolution tier 3, checked after
// the auth table and transient grants.
func (o *PGOracle) LookupByPublicKey(ctx context.Context, publicKey string) (string, bool, error) {
	const query = `SELECT identity FROM user_keys WHERE public_key = $1`

	var identity string
	err := o.pool.QueryRow(ctx, query, publicKey).Scan(&identity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("directory lookup: %w", err)
	}
	return identity, true, nil
}

// ListRepositories loads every repository row from the directory's
// repo_list table, matching original_source's db_client.repoList.
func (o *PGOracle) ListRepositories(ctx context.Context) ([]repo.Descriptor, error) {
	const query = `SELECT id, address, public_key, endpoint, path FROM repo_list`

	rows, err := o.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	var descriptors []repo.Descriptor
	for rows.Next() {
		var d repo.Descriptor
		if err := rows.Scan(&d.ID, &d.Address, &d.PublicKey, &d.Endpoint, &d.Path); err != nil {
			return nil, fmt.Errorf("scanning repository row: %w", err)
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, rows.Err()
}

// Close releases the connection pool.
func (o *PGOracle) Close() {
	o.pool.Close()
}

// StaticOracle is an in-memory Oracle for tests and bootstrap/local runs.
type StaticOracle struct {
	Identities   map[string]string
	Repositories []repo.Descriptor
}

// NewStaticOracle returns a StaticOracle with empty tables.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{Identities: make(map[string]string)}
}

// LookupByPublicKey implements Oracle.
func (o *StaticOracle) LookupByPublicKey(_ context.Context, publicKey string) (string, bool, error) {
	identity, ok := o.Identities[publicKey]
	return identity, ok, nil
}

// ListRepositories implements Oracle.
func (o *StaticOracle) ListRepositories(_ context.Context) ([]repo.Descriptor, error) {
	return o.Repositories, nil
}
