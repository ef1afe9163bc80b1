package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "funcov.dev/pkg/funcov/internal/model"
)

func TestViewCmd_UsesConfiguredLogsDirByDefault(t *testing.T) {
	fake := &fakeWorkflow{}
	originalWorkflow := workflow
	workflow = fake
	defer func() { workflow = originalWorkflow }()

	cmd := newRootCmd()
	cmd.AddCommand(newViewCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	cmd.SetArgs([]string{"view"})
	err := cmd.Execute()
	require.NoError(t, err)

	require.NotNil(t, fake.viewArgs)
	assert.Equal(t, m.Path(defaultLogsDir), fake.viewArgs.LogDir)
}

func TestViewCmd_PositionalLogDirIsPassedThrough(t *testing.T) {
	fake := &fakeWorkflow{}
	originalWorkflow := workflow
	workflow = fake
	defer func() { workflow = originalWorkflow }()

	cmd := newRootCmd()
	cmd.AddCommand(newViewCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	cmd.SetArgs([]string{"view", "./collected-logs"})
	err := cmd.Execute()
	require.NoError(t, err)

	require.NotNil(t, fake.viewArgs)
	assert.Equal(t, m.Path("./collected-logs"), fake.viewArgs.LogDir)
}

func TestViewCmd_ExtraArgsAreRejected(t *testing.T) {
	fake := &fakeWorkflow{}
	originalWorkflow := workflow
	workflow = fake
	defer func() { workflow = originalWorkflow }()

	cmd := newRootCmd()
	cmd.AddCommand(newViewCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	cmd.SetArgs([]string{"view", "./one", "./two"})
	err := cmd.Execute()

	require.Error(t, err)
	assert.Nil(t, fake.viewArgs)
}
