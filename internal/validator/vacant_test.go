package validator

import (
	"testing"

	"github.com/kaelnet/chaincore/internal/chainstore"
	"github.com/kaelnet/chaincore/pkg/block"
	"github.com/kaelnet/chaincore/pkg/types"
)

func TestValidateVacant_CarriesTrustForward(t *testing.T) {
	v, store := newValidatorHarness(t)

	prevHash := types.Hash{0xBB}
	if err := store.PutOutline(prevHash, chainstore.BlockOutline{Height: 4, Trust: "12345"}); err != nil {
		t.Fatalf("PutOutline: %v", err)
	}

	header := block.Header{Version: 1, Type: block.Vacant, Timestamp: 3000, PrevHash: prevHash}
	blk := block.NewBlock(header, nil, nil)

	prev := Ancestor{Hash: prevHash, Height: 4, Timestamp: 2000, Bits: 16}
	outline, err := v.ValidateVacant(blk, prev)
	if err != nil {
		t.Fatalf("ValidateVacant: %v", err)
	}
	if outline.Height != 5 {
		t.Errorf("Height = %d, want 5", outline.Height)
	}
	if outline.Trust != "12345" {
		t.Errorf("Trust = %s, want unchanged 12345", outline.Trust)
	}
	if outline.PrevHash != prevHash {
		t.Errorf("PrevHash = %x, want %x", outline.PrevHash, prevHash)
	}
}

func TestValidateVacant_NoRecordedParentTrustDefaultsToZero(t *testing.T) {
	v, _ := newValidatorHarness(t)

	prevHash := types.Hash{0xCC}
	header := block.Header{Version: 1, Type: block.Vacant, Timestamp: 3000, PrevHash: prevHash}
	blk := block.NewBlock(header, nil, nil)

	prev := Ancestor{Hash: prevHash, Height: 0, Timestamp: 2000, Bits: 16}
	outline, err := v.ValidateVacant(blk, prev)
	if err != nil {
		t.Fatalf("ValidateVacant: %v", err)
	}
	if outline.Trust != "0" {
		t.Errorf("Trust = %s, want 0", outline.Trust)
	}
}
