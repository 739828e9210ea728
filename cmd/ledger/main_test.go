package main

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/affiliate/internal/testutil"
)

func Test_run(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	port, err := testutil.RandomPort()
	require.NoError(t, err, "failed to get random port to start server")
	listenAddr := fmt.Sprintf("localhost:%d", port)

	getenv := func(string) string { return "" }
	getwd := func() (string, error) { return t.TempDir(), nil }

	t.Run("stop with context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		err := run(ctx, getenv, getwd, []string{
			"--address", listenAddr,
			"--log-level", "debug",
			"--environment", "dev",
			"--database", pg.DSN,
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("stop with srv error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		t.Cleanup(cancel)

		err := run(ctx, getenv, getwd, []string{
			"--address", "localhost:-1",
			"--database", pg.DSN,
		})

		require.Error(t, err, "server can't listen on invalid address")
	})

	t.Run("invalid config", func(t *testing.T) {
		tests := map[string][]string{
			"no database":   {"--address", listenAddr},
			"bad log level": {"--address", listenAddr, "--database", pg.DSN, "--log-level", "loud"},
			"bad env":       {"--address", listenAddr, "--database", pg.DSN, "--environment", "staging"},
		}

		for name, args := range tests {
			t.Run(name, func(t *testing.T) {
				err := run(t.Context(), getenv, getwd, args)

				require.Error(t, err)
			})
		}
	})
}
