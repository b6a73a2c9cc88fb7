package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCredentialStoreLoadAbsentYieldsDefaults(t *testing.T) {
	store, err := NewCredentialStore(CredentialStoreConfig{
		Persistence: NewMemoryPersistence(),
		TokenKey:    "token",
		SessionsKey: "sessions",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	snapshot, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !snapshot.Token.IsZero() || len(snapshot.Sessions) != 0 || snapshot.Sessions == nil {
		t.Fatalf("expected empty defaults, got %#v", snapshot)
	}
}

func TestCredentialStoreRoundTrip(t *testing.T) {
	persistence := NewMemoryPersistence()
	store, err := NewCredentialStore(CredentialStoreConfig{
		Persistence: persistence,
		TokenKey:    "token",
		SessionsKey: "sessions",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	fetchedAt := time.Date(2026, 2, 2, 10, 0, 0, 123000000, time.UTC)
	store.PersistToken(context.Background(), AccessToken{Token: "X", ExpiresIn: 7200, FetchedAt: fetchedAt})
	store.PersistSessions(context.Background(), map[string]string{"U": "S"})

	snapshot, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snapshot.Token.Token != "X" || snapshot.Token.ExpiresIn != 7200 || !snapshot.Token.FetchedAt.Equal(fetchedAt) {
		t.Fatalf("unexpected token round trip %#v", snapshot.Token)
	}
	if snapshot.Sessions["U"] != "S" {
		t.Fatalf("unexpected sessions round trip %#v", snapshot.Sessions)
	}
}

func TestCredentialStoreCorruptBlobIsReportedAndIgnored(t *testing.T) {
	persistence := NewMemoryPersistence()
	_ = persistence.Save(context.Background(), "token", []byte("{not json"))
	sink := newRecordingSink()
	store, err := NewCredentialStore(CredentialStoreConfig{
		Persistence: persistence,
		Sink:        sink,
		TokenKey:    "token",
		SessionsKey: "sessions",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	snapshot, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !snapshot.Token.IsZero() {
		t.Fatalf("expected corrupt token to be ignored")
	}
	if sink.Count("token") != 1 {
		t.Fatalf("expected corrupt blob to be reported")
	}
}

func TestCredentialStoreReadFailureIsReturned(t *testing.T) {
	store, err := NewCredentialStore(CredentialStoreConfig{
		Persistence: failingPersistence{loadErr: errors.New("disk offline")},
		TokenKey:    "token",
		SessionsKey: "sessions",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Load(context.Background()); err == nil || !strings.Contains(err.Error(), "disk offline") {
		t.Fatalf("expected read failure, got %v", err)
	}
}

func TestCredentialStoreWriteFailureGoesToSink(t *testing.T) {
	sink := newRecordingSink()
	store, err := NewCredentialStore(CredentialStoreConfig{
		Persistence: failingPersistence{saveErr: errors.New("read-only")},
		Sink:        sink,
		TokenKey:    "token",
		SessionsKey: "sessions",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	store.PersistToken(context.Background(), AccessToken{Token: "X"})
	store.PersistSessions(context.Background(), map[string]string{"U": "S"})
	if sink.Count("token") != 1 || sink.Count("sessions") != 1 {
		t.Fatalf("expected both failures to reach the sink")
	}
}

func TestNewCredentialStoreValidatesKeys(t *testing.T) {
	if _, err := NewCredentialStore(CredentialStoreConfig{Persistence: NewMemoryPersistence(), TokenKey: "k", SessionsKey: "k"}); err == nil {
		t.Fatalf("expected duplicate keys to be rejected")
	}
	if _, err := NewCredentialStore(CredentialStoreConfig{TokenKey: "a", SessionsKey: "b"}); err == nil {
		t.Fatalf("expected missing persistence to be rejected")
	}
}
