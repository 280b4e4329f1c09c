package main

import (
	"context"
	"testing"

	"github.com/myrjola/mavis/internal/e2etest"
	"github.com/myrjola/mavis/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func testLookupEnv(key string) (string, bool) {
	switch key {
	case "MAVIS_ADDR":
		return "localhost:0", true
	case "MAVIS_SQLITE_URL":
		return ":memory:", true
	case "MAVIS_SPEEDUP":
		// The whole script plays in a few dozen milliseconds.
		return "1000", true
	default:
		return "", false
	}
}

// startTestServer starts the server on a random port and stops it when the test ends.
func startTestServer(t *testing.T, lookupEnv func(string) (string, bool)) *e2etest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	server, err := e2etest.StartServer(ctx, testhelpers.NewWriter(t), lookupEnv, run)
	require.NoError(t, err)
	return server
}
