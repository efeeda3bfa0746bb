package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/checkout/internal/storage/postgres"
)

type fakeMigrator struct {
	version uint
	upSteps []int
	down    []int
	upErr   error
	closed  bool
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	if f.upErr != nil {
		return f.upErr
	}
	f.upSteps = append(f.upSteps, steps)
	f.version = 3
	return nil
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.down = append(f.down, steps)
	f.version--
	return nil
}

func (f *fakeMigrator) MigrationStatus(context.Context) (postgres.MigrationState, error) {
	return postgres.MigrationState{Version: f.version}, nil
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func stubMigrator(t *testing.T, m *fakeMigrator) *[]string {
	t.Helper()
	var dsns []string
	old := openMigrator
	openMigrator = func(_ context.Context, dsn string) (migrator, error) {
		dsns = append(dsns, dsn)
		return m, nil
	}
	t.Cleanup(func() { openMigrator = old })
	return &dsns
}

func TestMigrate_Up(t *testing.T) {
	m := &fakeMigrator{}
	dsns := stubMigrator(t, m)
	var out bytes.Buffer

	err := newApp(&out).Run([]string{"migrate", "--dsn=postgres://x", "up", "--steps=2"})
	require.NoError(t, err)

	assert.Equal(t, []int{2}, m.upSteps)
	assert.Equal(t, []string{"postgres://x"}, *dsns)
	assert.True(t, m.closed)
	assert.Equal(t, "migrate up ok: version=3 dirty=false\n", out.String())
}

func TestMigrate_DownAndStatus(t *testing.T) {
	m := &fakeMigrator{version: 3}
	stubMigrator(t, m)
	var out bytes.Buffer

	require.NoError(t, newApp(&out).Run([]string{"migrate", "--dsn=postgres://x", "down"}))
	require.NoError(t, newApp(&out).Run([]string{"migrate", "--dsn=postgres://x", "status"}))

	assert.Equal(t, []int{0}, m.down)
	assert.Contains(t, out.String(), "migrate down ok: version=2")
	assert.Contains(t, out.String(), "migration status: version=2")
}

func TestMigrate_DSNFromEnv(t *testing.T) {
	t.Setenv("CHECKOUT_POSTGRES_DSN", "postgres://env")
	dsns := stubMigrator(t, &fakeMigrator{})

	require.NoError(t, newApp(&bytes.Buffer{}).Run([]string{"migrate", "status"}))
	assert.Equal(t, []string{"postgres://env"}, *dsns)
}

func TestMigrate_RequiresDSN(t *testing.T) {
	t.Setenv("CHECKOUT_POSTGRES_DSN", "")
	stubMigrator(t, &fakeMigrator{})

	err := newApp(&bytes.Buffer{}).Run([]string{"migrate", "up"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHECKOUT_POSTGRES_DSN")
}

func TestMigrate_UpFailureClosesStore(t *testing.T) {
	m := &fakeMigrator{upErr: errors.New("dirty database")}
	stubMigrator(t, m)

	err := newApp(&bytes.Buffer{}).Run([]string{"migrate", "--dsn=postgres://x", "up"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dirty database")
	assert.True(t, m.closed)
}

func TestMigrate_OpenFailure(t *testing.T) {
	old := openMigrator
	openMigrator = func(context.Context, string) (migrator, error) { return nil, errors.New("connection refused") }
	t.Cleanup(func() { openMigrator = old })

	err := newApp(&bytes.Buffer{}).Run([]string{"migrate", "--dsn=postgres://x", "status"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open postgres store")
}
