// Package signer validates terminal arena state and produces the typed
// structured signature the escrow contract verifies before paying out. The
// digest binds (arena, winners, amounts, nonce) under an EIP-712 domain so
// an authorization can neither be replayed nor moved across arenas or
// chains.
package signer

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	// DomainName and DomainVersion identify the signing domain the escrow
	// contract was deployed against.
	DomainName    = "ClawArena"
	DomainVersion = "1"

	domainTypeString   = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	finalizeTypeString = "Finalize(address arena,bytes32 winnersHash,bytes32 amountsHash,uint256 nonce)"
)

func pad32(b []byte) []byte { return common.LeftPadBytes(b, 32) }

// DomainSeparator hashes the EIP-712 domain for one arena. The arena escrow
// address doubles as the verifying contract.
func DomainSeparator(chainID uint64, arena common.Address) [32]byte {
	var out [32]byte
	chain := uint256.NewInt(chainID).Bytes32()
	h := crypto.Keccak256(
		crypto.Keccak256([]byte(domainTypeString)),
		crypto.Keccak256([]byte(DomainName)),
		crypto.Keccak256([]byte(DomainVersion)),
		chain[:],
		pad32(arena.Bytes()),
	)
	copy(out[:], h)
	return out
}

// WinnersHash is keccak256 over the packed 20-byte winner addresses in rank
// order.
func WinnersHash(winners []common.Address) [32]byte {
	var out [32]byte
	packed := make([]byte, 0, len(winners)*common.AddressLength)
	for _, w := range winners {
		packed = append(packed, w.Bytes()...)
	}
	copy(out[:], crypto.Keccak256(packed))
	return out
}

// AmountsHash is keccak256 over the packed 32-byte big-endian amounts, in
// the same order as the winners.
func AmountsHash(amounts []*uint256.Int) [32]byte {
	var out [32]byte
	packed := make([]byte, 0, len(amounts)*32)
	for _, a := range amounts {
		b := a.Bytes32()
		packed = append(packed, b[:]...)
	}
	copy(out[:], crypto.Keccak256(packed))
	return out
}

// FinalizeDigest computes the canonical signing digest:
// keccak256(0x19 || 0x01 || domainSeparator || structHash).
func FinalizeDigest(chainID uint64, arena common.Address, winners []common.Address, amounts []*uint256.Int, nonce uint64) [32]byte {
	domain := DomainSeparator(chainID, arena)
	winnersHash := WinnersHash(winners)
	amountsHash := AmountsHash(amounts)
	nonce32 := uint256.NewInt(nonce).Bytes32()

	structHash := crypto.Keccak256(
		crypto.Keccak256([]byte(finalizeTypeString)),
		pad32(arena.Bytes()),
		winnersHash[:],
		amountsHash[:],
		nonce32[:],
	)

	var out [32]byte
	copy(out[:], crypto.Keccak256([]byte{0x19, 0x01}, domain[:], structHash))
	return out
}
