// Package genesis opens a channel: it writes the genesis block anchored to
// the hash of the genesis file and runs each contract's init.
package genesis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"civicledger/core/audit"
	"civicledger/core/auth"
	"civicledger/core/block"
	"civicledger/core/ledger"
)

const adminRole = "admin"

// Hash is the Merkle root over the canonical JSON of every genesis entry.
// Map keys are sorted by encoding/json, so equal files hash equally.
func (c *Config) Hash() (string, error) {
	var leaves []string
	add := func(kind string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("hash %s: %w", kind, err)
		}
		sum := sha256.Sum256(append([]byte(kind+":"), b...))
		leaves = append(leaves, hex.EncodeToString(sum[:]))
		return nil
	}
	if err := add("channel", c.Channel); err != nil {
		return "", err
	}
	for _, org := range c.Organizations {
		if err := add("organization", org); err != nil {
			return "", err
		}
	}
	if err := add("admin", c.Admin); err != nil {
		return "", err
	}
	for _, name := range c.ContractNames() {
		if err := add("contract:"+name, c.Contracts[name]); err != nil {
			return "", err
		}
	}
	return block.MerkleRoot(leaves), nil
}

// Applier runs the genesis of a channel on a node.
type Applier struct {
	Log   *zap.Logger
	Audit audit.AuditLogger
}

// Apply bootstraps node with cfg. On a ledger that already has a genesis
// block nothing is submitted. Every registered contract gets an init
// transaction, with its settings from cfg when present.
func (a Applier) Apply(ctx context.Context, node *ledger.Node, cfg *Config) (bool, error) {
	log := a.Log
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Channel != node.Channel() {
		return false, fmt.Errorf("genesis is for channel %q, node serves %q", cfg.Channel, node.Channel())
	}
	hash, err := cfg.Hash()
	if err != nil {
		return false, err
	}
	created, err := node.Bootstrap(ctx, hash)
	if err != nil {
		a.record("genesis_bootstrap", "failure", err.Error(), map[string]string{"configHash": hash})
		return false, err
	}
	if !created {
		log.Info("ledger already initialised", zap.String("channel", cfg.Channel))
		return false, nil
	}
	a.record("genesis_bootstrap", "success", "", map[string]string{"configHash": hash})

	admin := auth.NewIdentity(cfg.Admin.ID, cfg.Admin.MSPID, adminRole)
	for _, name := range node.Contracts() {
		var args []string
		if seed, ok := cfg.Contracts[name]; ok && len(seed.Settings) > 0 {
			patch, err := json.Marshal(seed.Settings)
			if err != nil {
				return true, fmt.Errorf("encode %s settings: %w", name, err)
			}
			args = []string{string(patch)}
		}
		res, err := node.Submit(ctx, ledger.Proposal{
			Contract: name,
			Function: "init",
			Args:     args,
			Caller:   admin,
		})
		if err != nil {
			a.record("contract_init", "failure", err.Error(), map[string]string{"contract": name})
			return true, fmt.Errorf("init %s: %w", name, err)
		}
		a.record("contract_init", "success", "", map[string]string{"contract": name, "txId": res.TxID})
		log.Info("contract initialised", zap.String("contract", name), zap.Uint64("block", res.BlockNumber))
	}
	return true, nil
}

func (a Applier) record(eventType, result, reason string, meta map[string]string) {
	if a.Audit == nil {
		return
	}
	a.Audit.LogEvent(audit.AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		EntityID:  "genesis",
		Result:    result,
		Reason:    reason,
		Metadata:  meta,
	})
}
