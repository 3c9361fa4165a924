package node

import (
	"sort"

	"combinelock.dev/node/consensus"
	"combinelock.dev/node/crypto"
)

// Catalog program names.
const (
	ProgramAlwaysSuccess     = "always-success"
	ProgramAlwaysFailure     = "always-failure"
	ProgramSecp256k1Blake160 = "secp256k1-blake160"
	ProgramAuth              = "auth"
	ProgramCombineLock       = "combine-lock"
)

// programDataPrefix marks a cell dep whose data names a native program.
const programDataPrefix = "native:"

// EXIT_ALWAYS_FAILURE is what always-failure returns.
const EXIT_ALWAYS_FAILURE int8 = 1

var catalog = map[string]consensus.ChildAuthorizer{
	ProgramAlwaysSuccess: consensus.ExternalInvocation{
		Name:    ProgramAlwaysSuccess,
		Program: consensus.ProgramFunc(func(*consensus.ScriptContext) (int8, error) { return consensus.EXIT_OK, nil }),
	},
	ProgramAlwaysFailure: consensus.ExternalInvocation{
		Name:    ProgramAlwaysFailure,
		Program: consensus.ProgramFunc(func(*consensus.ScriptContext) (int8, error) { return EXIT_ALWAYS_FAILURE, nil }),
	},
	ProgramSecp256k1Blake160: consensus.ExternalInvocation{
		Name:    ProgramSecp256k1Blake160,
		Program: consensus.ProgramFunc(runSecp256k1Blake160),
	},
	ProgramAuth: consensus.BuiltinSignatureCheck{},
	ProgramCombineLock: consensus.ExternalInvocation{
		Name:    ProgramCombineLock,
		Program: consensus.ProgramFunc(runCombineLock),
	},
}

// runSecp256k1Blake160 is the single-key lock: args hold blake160(pubkey),
// the witness holds the signature.
func runSecp256k1Blake160(sc *consensus.ScriptContext) (int8, error) {
	args := sc.Args()
	if len(args) != crypto.BLAKE160_BYTES {
		return consensus.EXIT_MALFORMED_ENCODING, nil
	}
	var pkh [20]byte
	copy(pkh[:], args)
	if err := consensus.CheckSignature(sc, consensus.AUTH_ID_CKB, pkh, sc.Witness); err != nil {
		if consensus.IsFatal(err) {
			return 0, err
		}
		return consensus.ExitCode(err), nil
	}
	return consensus.EXIT_OK, nil
}

// runCombineLock lets a combine lock appear as a child of another policy.
func runCombineLock(sc *consensus.ScriptContext) (int8, error) {
	if err := sc.VerifyCombineLock(sc.Args(), sc.Witness); err != nil {
		if consensus.IsFatal(err) {
			return 0, err
		}
		return consensus.ExitCode(err), nil
	}
	return consensus.EXIT_OK, nil
}

func LookupProgram(name string) (consensus.ChildAuthorizer, bool) {
	a, ok := catalog[name]
	return a, ok
}

func ProgramNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProgramData is the cell data that deploys a native program.
func ProgramData(name string) []byte {
	return []byte(programDataPrefix + name)
}

// ProgramCodeHash is the data hash a Data/Data1 script uses to reference name.
func ProgramCodeHash(p crypto.CryptoProvider, name string) [32]byte {
	return p.ContentHash(ProgramData(name))
}

func programFromData(data []byte) (string, bool) {
	s := string(data)
	if len(s) <= len(programDataPrefix) || s[:len(programDataPrefix)] != programDataPrefix {
		return "", false
	}
	name := s[len(programDataPrefix):]
	_, ok := catalog[name]
	return name, ok
}
