package consensus

import "combinelock.dev/node/crypto"

type DepType byte

const (
	DEP_TYPE_CODE      DepType = 0
	DEP_TYPE_DEP_GROUP DepType = 1
)

type OutPoint struct {
	TxHash [32]byte
	Index  uint32
}

type CellDep struct {
	OutPoint OutPoint
	DepType  DepType
}

type CellInput struct {
	Since          uint64
	PreviousOutput OutPoint
}

type CellOutput struct {
	Capacity uint64
	Lock     Script
	Type     *Script
}

type Transaction struct {
	Version     uint32
	CellDeps    []CellDep
	HeaderDeps  [][32]byte
	Inputs      []CellInput
	Outputs     []CellOutput
	OutputsData [][]byte
	Witnesses   [][]byte
}

// TxView is a transaction together with the cells its inputs consume.
type TxView struct {
	Tx             *Transaction
	ResolvedInputs []CellOutput
}

// GroupContext names the inputs sharing the lock script being verified.
type GroupContext struct {
	ScriptHash   [32]byte
	InputIndices []int
}

func appendOutPoint(dst []byte, o OutPoint) []byte {
	dst = append(dst, o.TxHash[:]...)
	return appendU32le(dst, o.Index)
}

func (o CellOutput) Bytes() []byte {
	return encodeDyn(appendU64le(nil, o.Capacity), o.Lock.Bytes(), encodeScriptOpt(o.Type))
}

// RawTransactionBytes encodes the witness-less part of tx, the tx hash preimage.
func RawTransactionBytes(tx *Transaction) []byte {
	cellDeps := make([]byte, 0, 37*len(tx.CellDeps))
	for _, d := range tx.CellDeps {
		cellDeps = appendOutPoint(cellDeps, d.OutPoint)
		cellDeps = append(cellDeps, byte(d.DepType))
	}
	headerDeps := make([]byte, 0, 32*len(tx.HeaderDeps))
	for _, h := range tx.HeaderDeps {
		headerDeps = append(headerDeps, h[:]...)
	}
	inputs := make([]byte, 0, 44*len(tx.Inputs))
	for _, in := range tx.Inputs {
		inputs = appendU64le(inputs, in.Since)
		inputs = appendOutPoint(inputs, in.PreviousOutput)
	}
	outputs := make([][]byte, len(tx.Outputs))
	for i, o := range tx.Outputs {
		outputs[i] = o.Bytes()
	}
	return encodeDyn(
		appendU32le(nil, tx.Version),
		encodeFixvec(len(tx.CellDeps), cellDeps),
		encodeFixvec(len(tx.HeaderDeps), headerDeps),
		encodeFixvec(len(tx.Inputs), inputs),
		encodeDyn(outputs...),
		encodeBytesVec(tx.OutputsData),
	)
}

func TransactionBytes(tx *Transaction) []byte {
	return encodeDyn(RawTransactionBytes(tx), encodeBytesVec(tx.Witnesses))
}

func TxHash(p crypto.CryptoProvider, tx *Transaction) [32]byte {
	return p.ContentHash(RawTransactionBytes(tx))
}

const OUT_POINT_BYTES = 32 + 4

// EncodeOutPointVec encodes the data of a dep_group cell.
func EncodeOutPointVec(ops []OutPoint) []byte {
	body := make([]byte, 0, OUT_POINT_BYTES*len(ops))
	for _, o := range ops {
		body = appendOutPoint(body, o)
	}
	return encodeFixvec(len(ops), body)
}

func DecodeOutPointVec(b []byte) ([]OutPoint, error) {
	n, body, err := parseFixvec(b, OUT_POINT_BYTES, "OutPointVec")
	if err != nil {
		return nil, err
	}
	out := make([]OutPoint, n)
	off := 0
	for i := range out {
		h, err := readBytes(body, &off, 32)
		if err != nil {
			return nil, err
		}
		copy(out[i].TxHash[:], h)
		if out[i].Index, err = readU32le(body, &off); err != nil {
			return nil, err
		}
	}
	return out, nil
}
