package relay

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestConsoleDropToggle(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Debug: true}, nil, zerolog.Nop())
	var out bytes.Buffer

	exit := executeCommand(s, "drop peer1 on", &out)
	require.False(t, exit, "drop command should not exit the console")
	require.True(t, s.dropSet["peer1"])

	executeCommand(s, "drop peer1 off", &out)
	require.False(t, s.dropSet["peer1"])

	executeCommand(s, "drop peer1 toggle", &out)
	require.True(t, s.dropSet["peer1"])
	executeCommand(s, "drop peer1 toggle", &out)
	require.False(t, s.dropSet["peer1"])
}

func TestConsoleDelay(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Debug: true}, nil, zerolog.Nop())
	var out bytes.Buffer

	executeCommand(s, "delay peer1 250", &out)
	require.Equal(t, 250*time.Millisecond, s.delays["peer1"])

	executeCommand(s, "delay peer1 off", &out)
	_, ok := s.delays["peer1"]
	require.False(t, ok, "delay off should clear the delay entry")
}

func TestConsoleStopContinue(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Debug: true}, nil, zerolog.Nop())
	var out bytes.Buffer

	executeCommand(s, "stop", &out)
	require.False(t, s.stepOn)
	executeCommand(s, "continue", &out)
	require.True(t, s.stepOn)
}

func TestConsoleExitStopsServer(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Debug: true}, nil, zerolog.Nop())
	require.NoError(t, s.Start())
	var out bytes.Buffer

	exit := executeCommand(s, "exit", &out)
	require.True(t, exit, "exit command should signal the console to stop")
	require.Contains(t, out.String(), "shutting down")
	require.True(t, s.closing, "exit should have run Stop on the server")
}

func TestConsoleNonInteractiveHasNoPrompt(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Debug: true}, nil, zerolog.Nop())
	var in bytes.Buffer
	var out bytes.Buffer
	in.WriteString("step\nexit\n")

	RunConsole(s, &in, &out)

	require.NotContains(t, out.String(), "> ", "a bytes.Buffer is never a terminal, so no prompt should print")
}
