package meshcli

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCapturesStdout(t *testing.T) {
	cli := NewCLI(WithCommand("sh"), WithTimeout(5*time.Second))

	out, err := cli.run(context.Background(), "report", "-c", "echo Connected to radio")
	require.NoError(t, err)
	assert.Equal(t, "Connected to radio", strings.TrimSpace(string(out)))
}

func TestRunTimeout(t *testing.T) {
	cli := NewCLI(WithCommand("sleep"), WithTimeout(50*time.Millisecond))

	_, err := cli.run(context.Background(), "report", "5")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCommandTimeout)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "report", cmdErr.Op)
}

func TestRunWrapsStderr(t *testing.T) {
	cli := NewCLI(WithCommand("sh"), WithTimeout(5*time.Second))

	_, err := cli.run(context.Background(), "config export", "-c", "echo no radio found >&2; exit 1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCommandTimeout)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "config export", cmdErr.Op)
	assert.Equal(t, "no radio found", cmdErr.Stderr)
	assert.Contains(t, cmdErr.Error(), "no radio found")
}

func TestRunMissingCommand(t *testing.T) {
	cli := NewCLI(WithCommand("meshtastic-does-not-exist"), WithTimeout(time.Second))

	_, err := cli.run(context.Background(), "report", "--info")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCommandTimeout)

	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestConnectionArgsAppended(t *testing.T) {
	// Connection args follow the operation's own arguments on every call.
	cli := NewCLI(WithCommand("echo"), WithConnectionArgs("--host", "192.168.1.5"))

	out, err := cli.run(context.Background(), "report", "--info")
	require.NoError(t, err)
	assert.Equal(t, "--info --host 192.168.1.5", strings.TrimSpace(string(out)))
}
