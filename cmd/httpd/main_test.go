package main

import (
	"context"
	"flag"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliastsa/httpd/client"
	"github.com/iliastsa/httpd/server"
)

func TestBuildConfig(t *testing.T) {
	t.Run("Flags only", func(t *testing.T) {
		o, err := parseFlags([]string{"-p", "8080", "-c", "8081", "-t", "3", "-d", "/srv"})
		require.NoError(t, err)

		cfg, err := buildConfig(o)
		require.NoError(t, err)
		require.Equal(t, ":8080", cfg.ServiceAddr)
		require.Equal(t, ":8081", cfg.ControlAddr)
		require.Equal(t, 3, cfg.Workers)
		require.Equal(t, "/srv", cfg.RootDir)
	})

	t.Run("Flags override file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "httpd.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
service_addr: ":9000"
control_addr: ":9001"
root_dir: /var/www
workers: 8
`), 0o644))

		o, err := parseFlags([]string{"-config", path, "-t", "2", "-debug"})
		require.NoError(t, err)

		cfg, err := buildConfig(o)
		require.NoError(t, err)
		require.Equal(t, ":9000", cfg.ServiceAddr)
		require.Equal(t, "/var/www", cfg.RootDir)
		require.Equal(t, 2, cfg.Workers)
		require.True(t, cfg.Debug)
	})

	t.Run("Missing required", func(t *testing.T) {
		o, err := parseFlags([]string{"-p", "8080"})
		require.NoError(t, err)

		_, err = buildConfig(o)
		require.ErrorIs(t, err, server.ErrInvalidConfig)
	})

	t.Run("Bad flags", func(t *testing.T) {
		_, err := parseFlags([]string{"-t", "many"})
		require.Error(t, err)

		_, err = parseFlags([]string{"extra"})
		require.Error(t, err)

		_, err = parseFlags([]string{"-h"})
		require.ErrorIs(t, err, flag.ErrHelp)
	})
}

func freePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)

	return port
}

func TestRunShutdownCommand(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("ok"), 0o644))

	service, control := freePort(t), freePort(t)

	done := make(chan error, 1)
	go func() {
		done <- run(context.Background(), []string{"-p", service, "-c", control, "-t", "2", "-d", root, "-json"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var resp *client.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = client.Get(ctx, "127.0.0.1:"+service, "/index.html")
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
	require.Equal(t, 200, resp.Code)
	require.Equal(t, []byte("ok"), resp.Body)

	_, err := client.Command(ctx, "127.0.0.1:"+control, server.CommandShutdown)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return")
	}
}

func TestRunSignal(t *testing.T) {
	root := t.TempDir()
	metrics := "127.0.0.1:" + freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"-p", freePort(t), "-c", freePort(t), "-d", root, "-metrics", metrics, "-json"})
	}()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", metrics)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 3*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("run did not return")
	}
}
