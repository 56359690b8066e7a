package storage_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kazenokoe/otoforge/internal/storage"
)

// backends lists every BlobStore implementation exercised by the shared
// conformance tests. Postgres needs a live database and is covered separately.
func backends(t *testing.T) map[string]storage.BlobStore {
	t.Helper()

	fsStore, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return map[string]storage.BlobStore{
		"mem": storage.NewMemStore(),
		"fs":  fsStore,
	}
}

func TestBlobStoreConformance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			t.Run("read missing key", func(t *testing.T) {
				_, err := store.Read(ctx, "missing/key")
				if !errors.Is(err, storage.ErrNotFound) {
					t.Fatalf("err = %v, want ErrNotFound", err)
				}
			})

			t.Run("write then read", func(t *testing.T) {
				want := []byte("voicebank data")
				if err := store.Write(ctx, "banks/lily/oto.ini", want); err != nil {
					t.Fatal(err)
				}
				got, err := store.Read(ctx, "banks/lily/oto.ini")
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(got, want) {
					t.Fatalf("got %q, want %q", got, want)
				}
			})

			t.Run("write replaces", func(t *testing.T) {
				key := "banks/lily/replaced"
				if err := store.Write(ctx, key, []byte("v1")); err != nil {
					t.Fatal(err)
				}
				if err := store.Write(ctx, key, []byte("v2")); err != nil {
					t.Fatal(err)
				}
				got, err := store.Read(ctx, key)
				if err != nil {
					t.Fatal(err)
				}
				if string(got) != "v2" {
					t.Fatalf("got %q, want v2", got)
				}
			})

			t.Run("create refuses to replace", func(t *testing.T) {
				key := "banks/lily/claimed"
				if err := store.Create(ctx, key, []byte("first")); err != nil {
					t.Fatal(err)
				}
				err := store.Create(ctx, key, []byte("second"))
				if !errors.Is(err, storage.ErrExists) {
					t.Fatalf("err = %v, want ErrExists", err)
				}
				got, err := store.Read(ctx, key)
				if err != nil {
					t.Fatal(err)
				}
				if string(got) != "first" {
					t.Fatalf("got %q, the losing create replaced the value", got)
				}
			})

			t.Run("concurrent creates one winner", func(t *testing.T) {
				const racers = 8
				errs := make([]error, racers)
				var wg sync.WaitGroup
				for i := 0; i < racers; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						errs[i] = store.Create(ctx, "banks/lily/raced", []byte{byte(i)})
					}(i)
				}
				wg.Wait()

				winners := 0
				for i, err := range errs {
					switch {
					case err == nil:
						winners++
					case !errors.Is(err, storage.ErrExists):
						t.Fatalf("racer %d: %v", i, err)
					}
				}
				if winners != 1 {
					t.Fatalf("%d creates succeeded, want exactly 1", winners)
				}
			})

			t.Run("exists", func(t *testing.T) {
				key := "banks/lily/present"
				found, err := store.Exists(ctx, key)
				if err != nil {
					t.Fatal(err)
				}
				if found {
					t.Fatal("key should not exist yet")
				}
				if err := store.Write(ctx, key, []byte("x")); err != nil {
					t.Fatal(err)
				}
				found, err = store.Exists(ctx, key)
				if err != nil {
					t.Fatal(err)
				}
				if !found {
					t.Fatal("key should exist after write")
				}
			})

			t.Run("delete", func(t *testing.T) {
				key := "banks/lily/deleted"
				if err := store.Write(ctx, key, []byte("x")); err != nil {
					t.Fatal(err)
				}
				if err := store.Delete(ctx, key); err != nil {
					t.Fatal(err)
				}
				if _, err := store.Read(ctx, key); !errors.Is(err, storage.ErrNotFound) {
					t.Fatalf("err = %v, want ErrNotFound after delete", err)
				}
				// Deleting an absent key is not an error.
				if err := store.Delete(ctx, key); err != nil {
					t.Fatalf("second delete: %v", err)
				}
			})

			t.Run("concurrent writers distinct keys", func(t *testing.T) {
				var wg sync.WaitGroup
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						key := fmt.Sprintf("concurrent/key-%d", i)
						if err := store.Write(ctx, key, []byte{byte(i)}); err != nil {
							t.Errorf("write %d: %v", i, err)
						}
					}(i)
				}
				wg.Wait()

				for i := 0; i < 8; i++ {
					got, err := store.Read(ctx, fmt.Sprintf("concurrent/key-%d", i))
					if err != nil {
						t.Fatal(err)
					}
					if len(got) != 1 || got[0] != byte(i) {
						t.Fatalf("key %d holds %v", i, got)
					}
				}
			})
		})
	}
}

func TestFSStoreRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := storage.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"", "../outside", "a/../../outside", "/etc/passwd"} {
		if _, err := store.Read(ctx, key); err == nil || errors.Is(err, storage.ErrNotFound) {
			t.Errorf("Read(%q) should reject the key, got %v", key, err)
		}
		if err := store.Write(ctx, key, []byte("x")); err == nil {
			t.Errorf("Write(%q) should reject the key", key)
		}
	}
}

func TestMemStoreCopiesOnReadAndWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := storage.NewMemStore()

	in := []byte("original")
	if err := store.Write(ctx, "k", in); err != nil {
		t.Fatal(err)
	}
	in[0] = 'X'

	got, err := store.Read(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Fatalf("stored value aliased the caller's slice: %q", got)
	}

	got[0] = 'Y'
	again, err := store.Read(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != "original" {
		t.Fatalf("read value aliased internal state: %q", again)
	}
}

func TestMemStoreZeroValueUsable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var store storage.MemStore

	if err := store.Write(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	got, err := store.Read(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v" {
		t.Fatalf("got %q, want v", got)
	}
}
