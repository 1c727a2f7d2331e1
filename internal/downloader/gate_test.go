package downloader

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/haul/internal/testutils"
	"github.com/ligustah/haul/internal/transfer"
)

func TestGateLimitsAdmission(t *testing.T) {
	g := newGate(2)
	ctx := context.Background()

	r1, err := g.Acquire(ctx)
	require.NoError(t, err)
	r2, err := g.Acquire(ctx)
	require.NoError(t, err)

	acquired := make(chan func(), 1)
	go func() {
		r3, err := g.Acquire(ctx)
		if err == nil {
			acquired <- r3
		}
	}()

	select {
	case <-acquired:
		t.Fatal("third Acquire must wait for a free slot")
	case <-time.After(50 * time.Millisecond):
	}

	r1()
	r1() // releasing twice frees only one slot

	select {
	case r3 := <-acquired:
		r3()
	case <-time.After(time.Second):
		t.Fatal("third Acquire was not admitted after release")
	}

	// r1 released once and r3 released, so exactly one slot is free.
	r4, err := g.Acquire(ctx)
	require.NoError(t, err)
	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx2)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r2()
	r4()
}

func TestGateClose(t *testing.T) {
	g := newGate(1)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	errCh := make(chan error, 1)
	go func() {
		_, err := g.Acquire(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	g.Close()
	g.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrGateClosed)
	case <-time.After(time.Second):
		t.Fatal("pending Acquire did not fail after Close")
	}

	_, err = g.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrGateClosed)
}

func TestCloseFailsWaitingItems(t *testing.T) {
	data := testutils.GenerateTestData(t, 1024)
	srv := testutils.StartServer(t,
		testutils.TestFile{Name: "first.bin", Data: data},
		testutils.TestFile{Name: "second.bin", Data: data},
	)
	srv.SetDelay(300 * time.Millisecond)

	opts := testOptions(t)
	opts.MaxConcurrent = 1
	d := New(opts)

	outDir := t.TempDir()
	items := []Item{
		{URL: srv.FileURL("first.bin"), Dest: filepath.Join(outDir, "first.bin")},
		{URL: srv.FileURL("second.bin"), Dest: filepath.Join(outDir, "second.bin")},
	}

	errCh := make(chan error, 1)
	go func() { errCh <- d.Download(context.Background(), items) }()

	require.Eventually(t, func() bool { return len(srv.Requests()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Close())

	var err error
	select {
	case err = <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("Download did not return after Close")
	}

	var admission *transfer.AdmissionError
	require.True(t, errors.As(err, &admission), "%v", err)
	assert.ErrorIs(t, err, ErrGateClosed)
	assert.Len(t, srv.Requests(), 1)
	assert.FileExists(t, filepath.Join(outDir, filepath.Base(srv.Requests()[0].Path)))
}
