package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nitinbetharia/schoolerp/internal/tenant"
)

func TestTarget(t *testing.T) {
	t.Parallel()

	naming := tenant.Naming{SystemDatabase: "school_erp_system", Prefix: "school_erp_trust_"}

	tests := []struct {
		name    string
		code    string
		system  bool
		wantDB  string
		wantErr bool
	}{
		{name: "system", system: true, wantDB: "school_erp_system"},
		{name: "tenant", code: "North-Campus", wantDB: "school_erp_trust_north_campus"},
		{name: "both", code: "demo", system: true, wantErr: true},
		{name: "neither", wantErr: true},
		{name: "malformed", code: "bad code", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := target(naming, tc.code, tc.system)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantDB, got.Database)
		})
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	for _, name := range []string{"migrate", "seed-admin", "list-users"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
