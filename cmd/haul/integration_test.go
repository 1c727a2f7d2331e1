//go:build integration

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ligustah/haul/internal/testutils"
)

func TestCLIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	t.Log("Starting Minio container...")
	minio := testutils.StartMinioContainer(t, ctx, "cli-test-bucket")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	data := testutils.GenerateTestData(t, 3*1024*1024)
	if err := minio.Upload(ctx, "test/cli-file.bin", data); err != nil {
		t.Fatalf("upload: %v", err)
	}

	tempDir := t.TempDir()
	outDir := t.TempDir()

	t.Run("get_from_bucket", func(t *testing.T) {
		code, _, stderr := runCLI(t,
			"--progress", "text", "--temp-dir", tempDir,
			"get", "--dir", outDir, minio.ObjectURL("test/cli-file.bin"),
		)
		if code != ExitSuccess {
			t.Fatalf("get failed with exit code %d:\n%s", code, stderr)
		}
		got, err := os.ReadFile(filepath.Join(outDir, "cli-file.bin"))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Error("content mismatch")
		}
	})

	t.Run("digest_matches", func(t *testing.T) {
		code, stdout, stderr := runCLI(t, "digest", filepath.Join(outDir, "cli-file.bin"))
		if code != ExitSuccess {
			t.Fatalf("digest failed with exit code %d:\n%s", code, stderr)
		}

		digest := stdout[:bytes.IndexByte([]byte(stdout), ' ')]
		dest := filepath.Join(t.TempDir(), "again.bin")
		code, _, stderr = runCLI(t,
			"--progress", "none", "--temp-dir", tempDir,
			"get", "--digest", digest, minio.ObjectURL("test/cli-file.bin")+"="+dest,
		)
		if code != ExitSuccess {
			t.Fatalf("get with digest failed with exit code %d:\n%s", code, stderr)
		}
	})

	t.Run("missing_object", func(t *testing.T) {
		code, _, _ := runCLI(t,
			"--progress", "none", "--temp-dir", tempDir,
			"get", "--dir", t.TempDir(), minio.ObjectURL("test/missing.bin"),
		)
		if code != ExitSourceNotAccess {
			t.Errorf("expected exit code %d, got %d", ExitSourceNotAccess, code)
		}
	})
}

func TestCLIResumeAcrossRuns(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	data := testutils.GenerateTestData(t, 1024*1024)
	srv := testutils.StartServer(t, testutils.TestFile{Name: "file.bin", Data: data})
	// The first run exhausts its retry budget against a failing server.
	for i := 0; i < 100; i++ {
		srv.AddFaults("file.bin", testutils.Fault{Status: 503})
	}

	tempDir := t.TempDir()
	dest := filepath.Join(t.TempDir(), "file.bin")
	t.Setenv("HAUL_RETRY_INITIAL_INTERVAL", "10ms")
	t.Setenv("HAUL_RETRY_MAX_INTERVAL", "20ms")
	t.Setenv("HAUL_RETRY_MAX_ELAPSED_TIME", "200ms")

	code, _, _ := runCLI(t, "--progress", "none", "--temp-dir", tempDir, "get", srv.FileURL("file.bin")+"="+dest)
	if code != ExitSourceNotAccess {
		t.Fatalf("expected first run to fail with %d, got %d", ExitSourceNotAccess, code)
	}

	// The second run sees its first response cut short and resumes it.
	srv2 := testutils.StartServer(t, testutils.TestFile{Name: "file.bin", Data: data})
	srv2.AddFaults("file.bin", testutils.Fault{CutAfter: 400000})
	t.Setenv("HAUL_RETRY_MAX_ELAPSED_TIME", "30s")

	code, _, stderr := runCLI(t, "--progress", "none", "--temp-dir", tempDir, "get", srv2.FileURL("file.bin")+"="+dest)
	if code != ExitSuccess {
		t.Fatalf("second run failed with exit code %d:\n%s", code, stderr)
	}
	reqs := srv2.Requests()
	if len(reqs) != 2 || reqs[1].Range != "bytes=400000-" {
		t.Errorf("expected a resumed second request, got %+v", reqs)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("content mismatch")
	}
}
