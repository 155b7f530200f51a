package governance

import (
	"encoding/hex"
	"strconv"

	"go.uber.org/zap"

	"github.com/provchain/provchain-core/pverr"
	"github.com/provchain/provchain-core/tx"
)

// ConfigSetter applies an UpdateConfiguration action's (key, value) pair to
// live runtime configuration. The interface keeps this package decoupled
// from package config.
type ConfigSetter interface {
	Set(key, value string) error
}

// Governance processes GovernanceAction-carrying transactions against a
// ValidatorSet.
type Governance struct {
	validators	*ValidatorSet
	config		ConfigSetter
	logger		*zap.SugaredLogger
}

// New constructs a Governance processor. config may be nil, in which case
// UpdateConfiguration actions are accepted but have no effect.
func New(validators *ValidatorSet, config ConfigSetter, lg *zap.SugaredLogger) *Governance {
	if lg == nil {
		raw, _ := zap.NewProduction()
		lg = raw.Sugar()
	}
	return &Governance{validators: validators, config: config, logger: lg}
}

// Validators exposes the live validator set for read paths (e.g. a signer
// implementation checking whether it is a recognized validator).
func (g *Governance) Validators() *ValidatorSet { return g.validators }

// Precheck validates that txn would satisfy quorum (and carries a
// recognized action) without mutating the validator set. It is meant for
// pool-admission time, where early rejection is useful but the
// authoritative state change must wait until the transaction is actually
// sealed into a block via Process.
func (g *Governance) Precheck(txn *tx.Transaction) error {
	payload, ok := txn.Payload.(tx.GovernancePayload)
	if !ok {
		return nil
	}
	switch payload.Action.(type) {
	case tx.AddValidatorAction, tx.RemoveValidatorAction:
		return g.requireQuorum(txn)
	case tx.UpdateConfigurationAction:
		return nil
	default:
		return pverr.New(pverr.Governance, "unrecognized governance action")
	}
}

// Process is a no-op unless txn.Payload carries a GovernanceAction,
// otherwise it validates the signer quorum and applies the action. This is
// the authoritative mutation and must only be called for transactions
// actually sealed into a block, never at pool-admission time.
func (g *Governance) Process(txn *tx.Transaction) error {
	payload, ok := txn.Payload.(tx.GovernancePayload)
	if !ok {
		return nil
	}

	switch action := payload.Action.(type) {
	case tx.AddValidatorAction:
		if err := g.requireQuorum(txn); err != nil {
			return err
		}
		if !g.validators.add(action.PublicKeyHex) {
			return pverr.Wrap(pverr.Governance, "add validator: set at capacity or key already present", pverr.ErrValidatorBounds)
		}
		g.logger.Infow("governance: validator added", "pub_key", action.PublicKeyHex)
		return nil

	case tx.RemoveValidatorAction:
		if err := g.requireQuorum(txn); err != nil {
			return err
		}
		if !g.validators.remove(action.PublicKeyHex) {
			return pverr.Wrap(pverr.Governance, "remove validator: not present or removal would breach minimum size", pverr.ErrValidatorBounds)
		}
		g.logger.Infow("governance: validator removed", "pub_key", action.PublicKeyHex)
		return nil

	case tx.UpdateConfigurationAction:
		if g.config != nil {
			if err := g.config.Set(action.Key, action.Value); err != nil {
				return pverr.Wrap(pverr.Governance, "apply configuration update", err)
			}
		}
		g.logger.Infow("governance: configuration updated", "key", action.Key, "value", action.Value)
		return nil

	default:
		return pverr.New(pverr.Governance, "unrecognized governance action")
	}
}

// requireQuorum counts signers among txn.Signatures whose public key is a
// current validator and compares against the majority-with-bootstrap
// quorum rule.
func (g *Governance) requireQuorum(txn *tx.Transaction) error {
	required := g.validators.requiredVotes()
	votes := 0
	for _, sig := range txn.Signatures {
		hexKey := hex.EncodeToString(sig.PublicKey)
		if required == 0 || g.validators.IsMember(hexKey) {
			votes++
		}
	}
	if votes < required {
		return pverr.Wrap(pverr.Governance, "governance action has "+strconv.Itoa(votes)+
			" validator votes, needs "+strconv.Itoa(required), pverr.ErrQuorumNotMet)
	}
	return nil
}
