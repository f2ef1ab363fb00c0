// Package consensus implements the PoW difficulty controller and
// block-trust accounting (spec.md §4.8, C8).
package consensus

// StakeChecker verifies that a delegate has sufficient stake locked
// on-chain to enroll or to sign a subsidiary/extended block.
type StakeChecker interface {
	HasStake(pubKey []byte) (bool, error)
}
