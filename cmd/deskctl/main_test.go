package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdesk/internal/attendance"
	"classdesk/internal/auth"
)

func tokenOutput(t *testing.T, out string) map[string]string {
	t.Helper()
	fields := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		k, v, ok := strings.Cut(line, "=")
		require.True(t, ok, line)
		fields[k] = v
	}
	return fields
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "ops-key")
	t.Setenv("JWT_ISSUER", "ops-issuer")
	t.Setenv("ACCESS_TTL", "5m")
	t.Setenv("REFRESH_TTL", "2h")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--school", "7", "--user", "u-9", "--role", "teacher", "--name", "Asha"})
	require.NoError(t, root.Execute())

	fields := tokenOutput(t, out.String())
	p, err := auth.Parse(fields["access_token"], "ops-key", "ops-issuer")
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{UserID: "u-9", Role: auth.RoleTeacher, SchoolID: 7, Name: "Asha"}, p)

	accessExp, err := time.Parse(time.RFC3339, fields["access_expires"])
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), accessExp, time.Minute)
	refreshExp, err := time.Parse(time.RFC3339, fields["refresh_expires"])
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), refreshExp, time.Minute)
	assert.NotEmpty(t, fields["refresh_token"])
}

func TestTokenCmd_RejectsStudentRole(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"token", "--school", "7", "--role", auth.RoleStudent})
	assert.Error(t, root.Execute())
}

func TestSelection_RequiresClass(t *testing.T) {
	opts := &options{schoolID: 7}
	_, err := opts.selection(attendance.Morning)
	assert.ErrorIs(t, err, attendance.ErrNoClass)
}
