package consensus

// BytesOpt is a molecule option<Bytes>; Present distinguishes Some(empty) from None.
type BytesOpt struct {
	Present bool
	Data    []byte
}

func SomeBytes(b []byte) BytesOpt { return BytesOpt{Present: true, Data: b} }

func (o BytesOpt) bytes() []byte {
	if !o.Present {
		return nil
	}
	return encodeBytes(o.Data)
}

func parseBytesOpt(b []byte, what string) (BytesOpt, error) {
	if len(b) == 0 {
		return BytesOpt{}, nil
	}
	v, err := parseBytes(b, what)
	if err != nil {
		return BytesOpt{}, err
	}
	return SomeBytes(v), nil
}

// WitnessArgs is the per-input witness container; Lock carries the lock's own
// serialized witness.
type WitnessArgs struct {
	Lock       BytesOpt
	InputType  BytesOpt
	OutputType BytesOpt
}

func (w WitnessArgs) Bytes() []byte {
	return encodeDyn(w.Lock.bytes(), w.InputType.bytes(), w.OutputType.bytes())
}

func DecodeWitnessArgs(b []byte) (*WitnessArgs, error) {
	fields, err := parseTable(b, 3, "WitnessArgs")
	if err != nil {
		return nil, err
	}
	lock, err := parseBytesOpt(fields[0], "WitnessArgs.lock")
	if err != nil {
		return nil, err
	}
	inputType, err := parseBytesOpt(fields[1], "WitnessArgs.input_type")
	if err != nil {
		return nil, err
	}
	outputType, err := parseBytesOpt(fields[2], "WitnessArgs.output_type")
	if err != nil {
		return nil, err
	}
	return &WitnessArgs{Lock: lock, InputType: inputType, OutputType: outputType}, nil
}

// UnlockWitness is the decoded lock field of a combine-lock witness.
type UnlockWitness struct {
	PathIndex   uint16
	InnerProofs [][]byte
	// PolicyBytes is the policy slot exactly as carried, the commitment
	// preimage. nil when the spender relies on a policy already proven in
	// this transaction.
	PolicyBytes []byte
	// Policy is used for encoding when PolicyBytes is nil. Decoding leaves it
	// nil: the slot is only parsed once it hashes to the commitment.
	Policy *Policy
}

func (w *UnlockWitness) HasPolicy() bool {
	return w.PolicyBytes != nil || w.Policy != nil
}

func (w *UnlockWitness) Bytes() []byte {
	var policy []byte
	switch {
	case w.PolicyBytes != nil:
		policy = w.PolicyBytes
	case w.Policy != nil:
		policy = w.Policy.Bytes()
	}
	return encodeDyn(appendU16le(nil, w.PathIndex), encodeBytesVec(w.InnerProofs), policy)
}

// DecodeUnlockWitness parses a CombineLockWitness. The policy slot is kept
// raw; see DecodePolicy.
func DecodeUnlockWitness(b []byte) (*UnlockWitness, error) {
	fields, err := parseTable(b, 3, "CombineLockWitness")
	if err != nil {
		return nil, err
	}
	if len(fields[0]) != 2 {
		return nil, malformed("CombineLockWitness.index: length %d", len(fields[0]))
	}
	off := 0
	pathIndex, err := readU16le(fields[0], &off)
	if err != nil {
		return nil, err
	}
	proofs, err := parseBytesVec(fields[1], "CombineLockWitness.inner_witness")
	if err != nil {
		return nil, err
	}
	w := &UnlockWitness{PathIndex: pathIndex, InnerProofs: proofs}
	if len(fields[2]) > 0 {
		w.PolicyBytes = append([]byte(nil), fields[2]...)
	}
	return w, nil
}

// BuildWitnessArgs wraps an unlock witness into the WitnessArgs lock field.
func BuildWitnessArgs(w *UnlockWitness) []byte {
	return WitnessArgs{Lock: SomeBytes(w.Bytes())}.Bytes()
}

// zeroWitnessLock returns witness with the WitnessArgs lock content replaced
// by zero bytes of the same length, the form covered by the signing message.
func zeroWitnessLock(witness []byte) ([]byte, error) {
	wa, err := DecodeWitnessArgs(witness)
	if err != nil {
		return nil, err
	}
	if !wa.Lock.Present {
		return nil, malformed("WitnessArgs.lock missing")
	}
	wa.Lock = SomeBytes(make([]byte, len(wa.Lock.Data)))
	return wa.Bytes(), nil
}
