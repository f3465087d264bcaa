// Package auditlog provides an optional, Firestore-backed append-only log
// of settlement and FCR confirmation-level transitions, for operator
// dashboards and post-incident forensics. It is a no-op when Firestore
// sync is not configured.
package auditlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	gcpfirestore "cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/bomanaps/fil-x402-facilitator/pkg/firestore"
)

// EventKind names the category of a recorded event.
type EventKind string

const (
	EventSettlementAccepted  EventKind = "settlement_accepted"
	EventSettlementSubmitted EventKind = "settlement_submitted"
	EventSettlementRetried   EventKind = "settlement_retried"
	EventSettlementConfirmed EventKind = "settlement_confirmed"
	EventSettlementFailed    EventKind = "settlement_failed"
	EventBondClaimed         EventKind = "bond_claimed"
	EventFCRLevelChanged     EventKind = "fcr_level_changed"
	EventVoucherSettled      EventKind = "voucher_settled"
)

// Entry is one append-only audit record. EntryHash/PreviousHash form a
// hash chain over a single collection, the same integrity scheme the
// teacher's Firestore audit trail uses per user.
type Entry struct {
	EntryID      string                 `json:"entryId" firestore:"-"`
	Kind         EventKind              `json:"kind" firestore:"kind"`
	SubjectID    string                 `json:"subjectId" firestore:"subjectId"` // payment id, voucher id, or wallet address
	Timestamp    time.Time              `json:"timestamp" firestore:"timestamp"`
	Details      map[string]interface{} `json:"details,omitempty" firestore:"details"`
	PreviousHash string                 `json:"previousHash" firestore:"previousHash"`
	EntryHash    string                 `json:"entryHash" firestore:"entryHash"`
}

// Service appends audit entries to a single Firestore collection,
// maintaining a hash chain across the whole facilitator instance rather
// than per-user, since settlements have no end-user account here.
type Service struct {
	client     *firestore.Client
	collection string
	logger     *log.Logger

	mu           sync.Mutex
	previousHash string
}

// Config configures a Service.
type Config struct {
	Client     *firestore.Client
	Collection string // defaults to "facilitatorAuditTrail"
	Logger     *log.Logger
}

// New builds a Service. A nil or disabled Client yields a Service whose
// Record calls are no-ops, matching firestore.Client's own enabled/no-op
// split so callers never need to branch on whether audit logging is on.
func New(cfg Config) *Service {
	if cfg.Collection == "" {
		cfg.Collection = "facilitatorAuditTrail"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.Writer(), "[AuditLog] ", log.LstdFlags)
	}
	return &Service{
		client:     cfg.Client,
		collection: cfg.Collection,
		logger:     cfg.Logger,
	}
}

// Enabled reports whether this service will actually persist entries.
func (s *Service) Enabled() bool {
	return s.client != nil && s.client.IsEnabled()
}

// Record appends one audit entry. It is safe to call unconditionally;
// when the service is disabled it logs a skip line and returns nil.
func (s *Service) Record(ctx context.Context, kind EventKind, subjectID string, details map[string]interface{}) error {
	if !s.Enabled() {
		s.logger.Printf("audit log disabled, skipping kind=%s subject=%s", kind, subjectID)
		return nil
	}

	s.mu.Lock()
	entry := &Entry{
		EntryID:      uuid.New().String(),
		Kind:         kind,
		SubjectID:    subjectID,
		Timestamp:    time.Now(),
		Details:      details,
		PreviousHash: s.previousHash,
	}
	entry.EntryHash = computeEntryHash(entry)
	s.previousHash = entry.EntryHash
	s.mu.Unlock()

	doc := s.client.Doc(fmt.Sprintf("%s/%s", s.collection, entry.EntryID))
	if doc == nil {
		return fmt.Errorf("auditlog: firestore client not initialized")
	}
	_, err := doc.Set(ctx, entry)
	if err != nil {
		s.logger.Printf("failed to write audit entry kind=%s subject=%s: %v", kind, subjectID, err)
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// ChainVerification is the result of replaying a collection's hash chain.
type ChainVerification struct {
	EntryCount int      `json:"entryCount"`
	Verified   bool     `json:"verified"`
	Errors     []string `json:"errors,omitempty"`
}

// VerifyChain replays this service's audit collection in timestamp order
// and checks that each entry's previousHash/entryHash line up, the same
// integrity check the teacher's per-user audit trail performs.
func (s *Service) VerifyChain(ctx context.Context) (*ChainVerification, error) {
	if !s.Enabled() {
		return &ChainVerification{Verified: true}, nil
	}
	coll := s.client.Collection(s.collection)
	if coll == nil {
		return nil, fmt.Errorf("auditlog: collection reference is nil")
	}
	docs, err := coll.OrderBy("timestamp", gcpfirestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("querying audit trail: %w", err)
	}

	result := &ChainVerification{EntryCount: len(docs), Verified: true}
	var previousHash string
	for i, doc := range docs {
		var entry Entry
		if err := doc.DataTo(&entry); err != nil {
			result.Verified = false
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: decode failed: %v", i, err))
			continue
		}
		entry.EntryID = doc.Ref.ID

		if entry.PreviousHash != previousHash {
			result.Verified = false
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d (%s): previousHash mismatch", i, entry.EntryID))
		}
		if computed := computeEntryHash(&entry); entry.EntryHash != computed {
			result.Verified = false
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d (%s): entryHash mismatch", i, entry.EntryID))
		}
		previousHash = entry.EntryHash
	}
	return result, nil
}

func computeEntryHash(e *Entry) string {
	data := map[string]interface{}{
		"kind":         e.Kind,
		"subjectId":    e.SubjectID,
		"timestamp":    e.Timestamp.Unix(),
		"previousHash": e.PreviousHash,
		"details":      e.Details,
	}
	b, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
