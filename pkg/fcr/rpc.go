package fcr

import "context"

// Progress is a single sample of the consensus subprotocol's current
// position, as reported by GetProgress.
type Progress struct {
	Instance uint64
	Round    uint64
	Phase    Phase
}

// Manifest describes the network's fast-finality parameters, fetched once
// at startup for diagnostics.
type Manifest struct {
	NetworkName   string
	CommitteeSize uint64
}

// ConsensusRPC is the JSON-RPC surface the monitor polls. Implementations
// wrap the chain node's fast-finality subprotocol endpoints.
type ConsensusRPC interface {
	GetProgress(ctx context.Context) (Progress, error)
	GetManifest(ctx context.Context) (Manifest, error)
	GetCertificate(ctx context.Context, instance uint64) (*Certificate, error)
	GetLatestCertificate(ctx context.Context) (*Certificate, error)
}
