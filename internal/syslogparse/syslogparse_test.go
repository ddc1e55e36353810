package syslogparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonSyslogMessagePassesThrough(t *testing.T) {
	msg, fields := Parse("hello world")
	assert.Equal(t, "hello world", msg)
	assert.Nil(t, fields)
}

// TestHostProgramPid is the concrete scenario from spec §8:
// "<134>May  1 12:34:56 host1 prog[42]: hello"
func TestHostProgramPid(t *testing.T) {
	msg, fields := Parse("<134>May  1 12:34:56 host1 prog[42]: hello")
	require.NotNil(t, fields)
	assert.Equal(t, "hello", msg)

	sevID, _ := fields.Get("severity_id")
	sevName, _ := fields.Get("severity_name")
	facID, _ := fields.Get("facility_id")
	facName, _ := fields.Get("facility_name")
	host, _ := fields.Get("hostname")
	program, _ := fields.Get("program")
	pid, _ := fields.Get("pid")
	ts, _ := fields.Get("timestamp")

	assert.Equal(t, 6, sevID)
	assert.Equal(t, "info", sevName)
	assert.Equal(t, 16, facID)
	assert.Equal(t, "local0", facName)
	assert.Equal(t, "host1", host)
	assert.Equal(t, "prog", program)
	assert.Equal(t, 42, pid)
	assert.Equal(t, "May  1 12:34:56", ts)
}

func TestHostOnlyNoProgram(t *testing.T) {
	_, fields := Parse("<13>Jan  1 00:00:00 myhost some message with spaces")
	require.NotNil(t, fields)
	host, _ := fields.Get("hostname")
	_, hasProgram := fields.Get("program")
	assert.Equal(t, "myhost", host)
	assert.False(t, hasProgram)
}

func TestProgramPidNoHost(t *testing.T) {
	_, fields := Parse("<13>Jan  1 00:00:00 prog[7]: message here")
	require.NotNil(t, fields)
	program, _ := fields.Get("program")
	pid, _ := fields.Get("pid")
	_, hasHost := fields.Get("hostname")
	assert.Equal(t, "prog", program)
	assert.Equal(t, 7, pid)
	assert.False(t, hasHost)
}

func TestSeverityFacilityDecomposition(t *testing.T) {
	// pri 0 => severity emerg(0), facility kern(0)
	_, fields := Parse("<0>Jan  1 00:00:00 nohost")
	require.NotNil(t, fields)
	sevName, _ := fields.Get("severity_name")
	facName, _ := fields.Get("facility_name")
	assert.Equal(t, "emerg", sevName)
	assert.Equal(t, "kern", facName)
}
