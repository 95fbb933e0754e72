package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliastsa/httpd/server"
)

func TestRun(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.html"), []byte("hello"), 0o644))

	srv, err := server.NewServer(&server.ServerConfig{
		ServiceAddr: "127.0.0.1:0",
		ControlAddr: "127.0.0.1:0",
		RootDir:     root,
		Workers:     1,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start())

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()
	t.Cleanup(func() { _ = srv.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := srv.ControlAddr().String()
	p := srv.Addr().String()

	t.Run("Usage", func(t *testing.T) {
		var out bytes.Buffer
		require.ErrorIs(t, run(ctx, nil, &out), errUsage)
		require.ErrorIs(t, run(ctx, []string{"get"}, &out), errUsage)
		require.ErrorIs(t, run(ctx, []string{"stats", "extra"}, &out), errUsage)
	})

	t.Run("Get", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run(ctx, []string{"-p", p, "get", "/a.html"}, &out))
		require.Equal(t, "hello", out.String())
	})

	t.Run("Get missing", func(t *testing.T) {
		var out bytes.Buffer
		err := run(ctx, []string{"-p", p, "get", "/nope.html"}, &out)
		require.ErrorContains(t, err, "404 Not Found")
		require.Equal(t, "<html>Not Found</html>", out.String())
	})

	t.Run("Stats", func(t *testing.T) {
		var out bytes.Buffer
		require.Eventually(t, func() bool {
			out.Reset()
			return run(ctx, []string{"-c", c, "STATS"}, &out) == nil &&
				strings.HasSuffix(out.String(), "served 1 pages, 5 bytes\n")
		}, 2*time.Second, 10*time.Millisecond)
		require.Regexp(t, `^Server up for .*, served 1 pages, 5 bytes\n$`, out.String())
	})

	t.Run("Shutdown", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, run(ctx, []string{"-c", c, "shutdown"}, &out))

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("server did not stop")
		}
		require.Equal(t, server.StateStopped, srv.State())
	})
}
