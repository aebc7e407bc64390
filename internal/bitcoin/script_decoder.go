package bitcoin

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
)

// Standard opcodes this decoder recognizes. Anything else falls through to
// "no address" rather than an error: classification failure is not a
// DecodeError (§7).
const (
	opDup            = 0x76
	opHash160        = 0xa9
	opEqualVerify    = 0x88
	opCheckSig       = 0xac
	opEqual          = 0x87
	opData1          = 0x01
	opPushData75Max  = 0x4b
	pubKeyCompressed = 33
	pubKeyFull       = 65
	hash160Len       = 20
)

// ScriptDecoder maps an output script to the canonical address that can
// spend it, or reports no address for anything it does not recognize.
type ScriptDecoder struct {
	params *chaincfg.Params
}

// NewScriptDecoder builds a decoder bound to one network's version bytes.
func NewScriptDecoder(params *chaincfg.Params) *ScriptDecoder {
	return &ScriptDecoder{params: params}
}

// Decode classifies a raw output script and returns the address it pays,
// or "" if the script is not a recognized payment type.
//
// The push-data walk is tolerant of truncated scripts: if a declared push
// length runs past the end of the script, the missing bytes are treated as
// zero rather than rejected. Historical chains carry non-standard
// transactions that truncate this way; indexing must not halt on them (§9).
func (d *ScriptDecoder) Decode(script []byte) string {
	switch {
	case isP2PKH(script):
		return d.hashAddress(script[3:23], false)
	case isP2SH(script):
		return d.hashAddress(script[2:22], true)
	case isBarePubKey(script):
		pubKey := tolerantPush(script[:len(script)-1], 1, pubKeyLen(script[0]))
		return d.hashAddress(btcutil.Hash160(pubKey), false)
	default:
		return ""
	}
}

func (d *ScriptDecoder) hashAddress(hash160 []byte, scriptHash bool) string {
	version := d.params.PubKeyHashAddrID
	if scriptHash {
		version = d.params.ScriptHashAddrID
	}
	return base58.CheckEncode(hash160, version)
}

// isP2PKH matches OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG.
func isP2PKH(script []byte) bool {
	return len(script) == 25 &&
		script[0] == opDup &&
		script[1] == opHash160 &&
		script[2] == hash160Len &&
		script[23] == opEqualVerify &&
		script[24] == opCheckSig
}

// isP2SH matches OP_HASH160 <20 bytes> OP_EQUAL.
func isP2SH(script []byte) bool {
	return len(script) == 23 &&
		script[0] == opHash160 &&
		script[1] == hash160Len &&
		script[22] == opEqual
}

// isBarePubKey matches <push of 33 or 65 bytes> OP_CHECKSIG, i.e. a
// pay-to-pubkey output.
func isBarePubKey(script []byte) bool {
	if len(script) < 2 {
		return false
	}
	n := pubKeyLen(script[0])
	return (n == pubKeyCompressed || n == pubKeyFull) && script[len(script)-1] == opCheckSig
}

func pubKeyLen(pushOp byte) int {
	if pushOp >= opData1 && pushOp <= opPushData75Max {
		return int(pushOp)
	}
	return 0
}

// tolerantPush reads length bytes starting at offset, zero-padding any
// portion that runs past the end of script.
func tolerantPush(script []byte, offset, length int) []byte {
	out := make([]byte, length)
	avail := len(script) - offset
	if avail <= 0 {
		return out
	}
	if avail > length {
		avail = length
	}
	copy(out, script[offset:offset+avail])
	return out
}
