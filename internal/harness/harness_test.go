package harness_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cellsentry/cellsentry/internal/config"
	"github.com/cellsentry/cellsentry/internal/diag"
	"github.com/cellsentry/cellsentry/internal/harness"
)

func userSpace(payload ...byte) diag.Container {
	return diag.Container{DataType: diag.DataTypeUserSpace, Payload: payload}
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	h := harness.New(config.Analyzers{IMSIRequest: true, NullCipher: true})
	meta := h.Metadata()
	require.Equal(t, harness.MetadataVersion, meta.Version)
	require.Len(t, meta.Analyzers, 2)
	require.Equal(t, "imsi_request", meta.Analyzers[0].Name)
	require.Equal(t, "null_cipher", meta.Analyzers[1].Name)

	disabled := harness.New(config.Analyzers{NullCipher: true})
	require.Len(t, disabled.Metadata().Analyzers, 1)
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	all := config.Analyzers{IMSIRequest: true, NullCipher: true}

	type then struct {
		empty   bool
		warning bool
	}
	cases := []struct {
		scenario string
		given    diag.Container
		then     then
	}{
		{"imsi_identity_request", userSpace(diag.KindIdentityRequest, diag.IdentityTypeIMSI), then{false, true}},
		{"imei_identity_request", userSpace(diag.KindIdentityRequest, diag.IdentityTypeIMEI), then{true, false}},
		{"null_cipher", userSpace(diag.KindSecurityMode, diag.CipherNull), then{false, true}},
		{"real_cipher", userSpace(diag.KindSecurityMode, 2), then{true, false}},
		{"uninteresting_record", userSpace(diag.KindCellInfo, 1, 2, 3), then{true, false}},
		{"control_container", diag.Container{DataType: diag.DataTypeControl, Payload: []byte{0xff}}, then{true, false}},
		{"empty_user_space_record", userSpace(), then{false, false}},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			h := harness.New(all)
			rows := h.Analyze(tc.given)
			require.Len(t, rows, 1)
			require.Equal(t, tc.then.empty, rows[0].IsEmpty())
			require.Equal(t, tc.then.warning, rows[0].ContainsWarnings())
		})
	}
}

func TestAnalyzeDisabled(t *testing.T) {
	t.Parallel()

	h := harness.New(config.Analyzers{NullCipher: true})
	rows := h.Analyze(userSpace(diag.KindIdentityRequest, diag.IdentityTypeIMSI))
	require.Len(t, rows, 1)
	require.True(t, rows[0].IsEmpty())
}
