package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// CredentialStore is the persistence-backed cache for the access token blob
// and the identity to session-secret map. Reads happen once, at startup.
// Writes are fire-and-forget through a PersistWriter.
type CredentialStore struct {
	persistence Persistence
	writer      PersistWriter
	codec       CredentialCodec
	sink        DiagnosticSink
	tokenKey    string
	sessionsKey string
}

type CredentialStoreConfig struct {
	Persistence Persistence
	Writer      PersistWriter
	Codec       CredentialCodec
	Sink        DiagnosticSink
	TokenKey    string
	SessionsKey string
}

func NewCredentialStore(cfg CredentialStoreConfig) (*CredentialStore, error) {
	if cfg.Persistence == nil {
		return nil, fmt.Errorf("core: credential store requires persistence")
	}
	tokenKey := strings.TrimSpace(cfg.TokenKey)
	sessionsKey := strings.TrimSpace(cfg.SessionsKey)
	if tokenKey == "" || sessionsKey == "" {
		return nil, fmt.Errorf("core: credential store keys are required")
	}
	if tokenKey == sessionsKey {
		return nil, fmt.Errorf("core: credential store keys must differ")
	}
	codec := cfg.Codec
	if codec == nil {
		codec = JSONCredentialCodec{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = NopDiagnosticSink{}
	}
	writer := cfg.Writer
	if writer == nil {
		writer = SyncPersistWriter{Persistence: cfg.Persistence, Sink: sink}
	}
	return &CredentialStore{
		persistence: cfg.Persistence,
		writer:      writer,
		codec:       codec,
		sink:        sink,
		tokenKey:    tokenKey,
		sessionsKey: sessionsKey,
	}, nil
}

// Load returns the persisted snapshot. Absent blobs yield defaults. A blob
// that cannot be decoded is reported to the diagnostic sink and ignored.
// Any other read failure is returned.
func (s *CredentialStore) Load(ctx context.Context) (CredentialSnapshot, error) {
	if s == nil {
		return CredentialSnapshot{}, fmt.Errorf("core: credential store is not configured")
	}
	snapshot := CredentialSnapshot{Sessions: map[string]string{}}

	tokenBlob, found, err := s.read(ctx, s.tokenKey)
	if err != nil {
		return CredentialSnapshot{}, err
	}
	if found {
		token, decodeErr := s.codec.DecodeToken(tokenBlob)
		if decodeErr != nil {
			s.sink.ReportPersistFailure(ctx, s.tokenKey, decodeErr)
		} else {
			snapshot.Token = token
		}
	}

	sessionsBlob, found, err := s.read(ctx, s.sessionsKey)
	if err != nil {
		return CredentialSnapshot{}, err
	}
	if found {
		sessions, decodeErr := s.codec.DecodeSessions(sessionsBlob)
		if decodeErr != nil {
			s.sink.ReportPersistFailure(ctx, s.sessionsKey, decodeErr)
		} else {
			for identity, secret := range sessions {
				snapshot.Sessions[identity] = secret
			}
		}
	}
	return snapshot, nil
}

func (s *CredentialStore) read(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.persistence.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("core: load credential blob %q: %w", key, err)
	}
	if len(payload) == 0 {
		return nil, false, nil
	}
	return payload, true, nil
}

func (s *CredentialStore) PersistToken(ctx context.Context, token AccessToken) {
	if s == nil {
		return
	}
	payload, err := s.codec.EncodeToken(token)
	if err != nil {
		s.sink.ReportPersistFailure(ctx, s.tokenKey, err)
		return
	}
	s.writer.Persist(ctx, s.tokenKey, payload)
}

func (s *CredentialStore) PersistSessions(ctx context.Context, sessions map[string]string) {
	if s == nil {
		return
	}
	payload, err := s.codec.EncodeSessions(sessions)
	if err != nil {
		s.sink.ReportPersistFailure(ctx, s.sessionsKey, err)
		return
	}
	s.writer.Persist(ctx, s.sessionsKey, payload)
}

func (s *CredentialStore) TokenKey() string {
	if s == nil {
		return ""
	}
	return s.tokenKey
}

func (s *CredentialStore) SessionsKey() string {
	if s == nil {
		return ""
	}
	return s.sessionsKey
}
