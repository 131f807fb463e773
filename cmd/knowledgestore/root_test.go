package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate"}, names)
}

func TestRootCmd_PreRunLoadsConfig(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("SERVICE_NAME", "knowledgestore-test")

	root := newRootCmd()
	var got *deps
	root.AddCommand(&cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := depsFrom(cmd)
			got = rt
			return err
		},
	})
	root.SetArgs([]string{"probe", "--env-file", filepath.Join(t.TempDir(), "missing.env")})
	root.SetOut(new(bytes.Buffer))

	require.NoError(t, root.Execute())
	require.NotNil(t, got)
	assert.Equal(t, "knowledgestore-test", got.cfg.ServiceName)
	assert.NotNil(t, got.logger)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "change-this-to-a-secure-secret")

	root := newRootCmd()
	root.AddCommand(&cobra.Command{Use: "probe", RunE: func(*cobra.Command, []string) error { return nil }})
	root.SetArgs([]string{"probe", "--env-file", filepath.Join(t.TempDir(), "missing.env")})
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}
