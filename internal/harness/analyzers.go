package harness

import "github.com/cellsentry/cellsentry/internal/diag"

// imsiRequestAnalyzer flags identity requests asking for the
// permanent subscriber identity. A legitimate network rarely needs
// the IMSI in cleartext; IMSI catchers always do.
type imsiRequestAnalyzer struct{}

func (imsiRequestAnalyzer) Name() string { return "imsi_request" }

func (imsiRequestAnalyzer) Description() string {
	return "detects identity requests for the permanent subscriber identity (IMSI)"
}

func (imsiRequestAnalyzer) Analyze(c diag.Container) *Event {
	if c.Kind() != diag.KindIdentityRequest || len(c.Payload) < 2 {
		return nil
	}
	if c.Payload[1] != diag.IdentityTypeIMSI {
		return nil
	}
	return warn("imsi_request", "network requested IMSI identity")
}

// nullCipherAnalyzer flags security mode commands selecting the null
// ciphering algorithm, leaving traffic unencrypted.
type nullCipherAnalyzer struct{}

func (nullCipherAnalyzer) Name() string { return "null_cipher" }

func (nullCipherAnalyzer) Description() string {
	return "detects security mode commands selecting the null ciphering algorithm"
}

func (nullCipherAnalyzer) Analyze(c diag.Container) *Event {
	if c.Kind() != diag.KindSecurityMode || len(c.Payload) < 2 {
		return nil
	}
	if c.Payload[1] != diag.CipherNull {
		return nil
	}
	return warn("null_cipher", "security mode command selected null cipher")
}
