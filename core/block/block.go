package block

import (
	"encoding/json"
	"time"

	"civicledger/types/ids"
)

// ValidationCode is the outcome recorded for a transaction at commit time.
type ValidationCode string

const (
	Valid            ValidationCode = "VALID"
	MVCCReadConflict ValidationCode = "MVCC_READ_CONFLICT"
	BadPayload       ValidationCode = "BAD_PAYLOAD"
)

// Block records one ordered transaction. Blocks are hash-chained through
// PrevHash; DataHash is the Merkle root of the transaction's writes.
type Block struct {
	BlockID        ids.ID         `json:"block_id"`       // Computed header hash
	Number         uint64         `json:"number"`         // Genesis = 0
	PrevHash       string         `json:"prevHash"`       // Parent block hash
	DataHash       string         `json:"dataHash"`       // Merkle root of write hashes
	Timestamp      time.Time      `json:"timestamp"`      // Transaction timestamp, UTC
	Channel        string         `json:"channel"`
	TxID           string         `json:"txId"`
	Contract       string         `json:"contract"`
	Function       string         `json:"function"`
	Creator        string         `json:"creator"`
	CreatorMSP     string         `json:"creatorMsp,omitempty"`
	ValidationCode ValidationCode `json:"validationCode"`
	WriteCount     int            `json:"writeCount"`
	Events         []string       `json:"events,omitempty"`
}

// ComputeID computes the hash of the block header fields (excluding BlockID itself)
func (b *Block) ComputeID() ids.ID {
	header := struct {
		Number         uint64
		PrevHash       string
		DataHash       string
		Timestamp      time.Time
		Channel        string
		TxID           string
		Contract       string
		Function       string
		Creator        string
		ValidationCode ValidationCode
	}{
		b.Number, b.PrevHash, b.DataHash, b.Timestamp.UTC(), b.Channel,
		b.TxID, b.Contract, b.Function, b.Creator, b.ValidationCode,
	}
	data, _ := json.Marshal(header)
	return ids.NewID(data)
}

// Serialize encodes Block into JSON
func (b *Block) Serialize() ([]byte, error) {
	return json.Marshal(b)
}

// Deserialize decodes JSON into Block
func Deserialize(data []byte) (*Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
